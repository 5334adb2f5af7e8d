package indexer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

const (
	MethodGetBalance           = "blockchain.address.get_balance"
	MethodGetScripthashHistory = "blockchain.scripthash.get_history"
	MethodServerVersion        = "server.version"
)

var (
	ErrEmptyResult    = errors.New("indexer returned an empty result")
	ErrInvalidAddress = errors.New("invalid address")
)

// Balance amounts are in satoshis. Unconfirmed may be negative when unconfirmed
// transactions spend confirmed coins.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// HistoryItem is one entry of an address history. Height is 0 or -1 for mempool transactions.
type HistoryItem struct {
	Height int64  `json:"height"`
	TxHash string `json:"tx_hash"`
	Fee    int64  `json:"fee,omitempty"`
}

// GetBalance returns the confirmed and unconfirmed balance of address.
// The address is passed through unvalidated; a malformed one comes back as *RPCError.
func (c *Client) GetBalance(ctx context.Context, address string) (*Balance, error) {
	raw, err := c.Call(ctx, MethodGetBalance, address)
	if err != nil {
		return nil, err
	}
	var balance Balance
	if err := decodeResult(raw, &balance); err != nil {
		return nil, fmt.Errorf("decode balance of %s: %w", address, err)
	}
	return &balance, nil
}

// GetHistory returns the confirmed and mempool history of a Bitcoin address.
func (c *Client) GetHistory(ctx context.Context, address string, params *chaincfg.Params) ([]HistoryItem, error) {
	scripthash, err := ScriptHash(address, params)
	if err != nil {
		return nil, err
	}
	raw, err := c.Call(ctx, MethodGetScripthashHistory, scripthash)
	if err != nil {
		return nil, err
	}
	var history []HistoryItem
	if err := decodeResult(raw, &history); err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", address, err)
	}
	return history, nil
}

// ServerVersion performs the protocol handshake and returns the server software name.
func (c *Client) ServerVersion(ctx context.Context, clientName, protocolVersion string) (string, error) {
	raw, err := c.Call(ctx, MethodServerVersion, clientName, protocolVersion)
	if err != nil {
		return "", err
	}
	var version []string
	if err := decodeResult(raw, &version); err != nil {
		return "", fmt.Errorf("decode server version: %w", err)
	}
	if len(version) == 0 {
		return "", ErrEmptyResult
	}
	return version[0], nil
}

// ScriptHash converts an address to the Electrum script hash: the sha256 of the
// output script, hex encoded in reversed byte order.
func ScriptHash(address string, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrInvalidAddress, address, err)
	}
	if !addr.IsForNet(params) {
		return "", fmt.Errorf("%w %s: not for network %s", ErrInvalidAddress, address, params.Name)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", fmt.Errorf("build output script for %s: %w", address, err)
	}
	return chainhash.Hash(sha256.Sum256(script)).String(), nil
}

func decodeResult(raw json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ErrEmptyResult
	}
	return json.Unmarshal(raw, v)
}
