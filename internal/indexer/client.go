// Package indexer talks to an Electrum-protocol UTXO indexer (Fulcrum, ElectrumX)
// using newline-delimited JSON-RPC 2.0 over a single persistent TCP connection.
//
// Every Call gets a fresh request id and its own buffered channel, registered
// before the request is written. The transport's reader goroutine resolves the
// channel for the id of each inbound response, so concurrent callers never see
// each other's results and responses may arrive in any order.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cryptofather/crypto-bot/internal/metrics"
	"github.com/cryptofather/crypto-bot/internal/state"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const DefaultCallTimeout = 10 * time.Second

// ErrTimeout is returned when no response for a request arrived in time.
var ErrTimeout = errors.New("indexer request timed out")

// RPCError is the error object of a JSON-RPC error response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type responseEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type response struct {
	result json.RawMessage
	err    *RPCError
}

type Option func(*Client)

func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithDialer(dial Dialer) Option {
	return func(c *Client) {
		c.transport.dial = dial
	}
}

func WithDialTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			d := &net.Dialer{Timeout: timeout}
			c.transport.dial = d.DialContext
		}
	}
}

func WithErrorReporter(reporter state.ErrorReporter) Option {
	return func(c *Client) {
		c.transport.reporter = reporter
	}
}

func WithPublisher(bus state.Publisher) Option {
	return func(c *Client) {
		c.transport.bus = bus
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Client) {
		c.newID = newID
	}
}

// Client correlates asynchronous indexer responses with their callers.
type Client struct {
	transport *Transport
	timeout   time.Duration
	newID     func() string

	mu      sync.Mutex
	pending map[string]chan response
}

// NewClient creates a client for the indexer at addr (host:port). The socket is opened
// lazily by the first Call or by Start.
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{
		timeout: DefaultCallTimeout,
		newID:   func() string { return uuid.New().String() },
		pending: make(map[string]chan response),
	}
	d := &net.Dialer{Timeout: 5 * time.Second}
	c.transport = newTransport(addr, d.DialContext, c.handleMessage)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens the connection eagerly and closes it when ctx is done.
func (c *Client) Start(ctx context.Context) {
	if err := c.transport.Connect(ctx); err != nil {
		log.Warnf("Indexer not reachable at start up, will retry on first request: %v", err)
	}
	log.Info("Indexer client started")

	<-ctx.Done()
	log.Info("Indexer client is stopping...")
	c.transport.Close()
}

func (c *Client) Connected() bool {
	return c.transport.Connected()
}

func (c *Client) Close() {
	c.transport.Close()
}

// Call sends method with params and waits for the matching response.
// It returns the raw result, a *RPCError reported by the indexer, ErrTimeout, or a transport error.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	result, err := c.call(ctx, method, params)
	metrics.ObserveIndexerCall(method, outcome(err))
	return result, err
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if !c.transport.Connected() {
		if err := c.transport.Connect(ctx); err != nil {
			return nil, err
		}
	}

	if params == nil {
		params = []interface{}{}
	}
	id := c.newID()
	ch := make(chan response, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.transport.Write(req); err != nil {
		return nil, err
	}
	log.Debugf("Indexer request %s sent, method %s", id, method)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.err != nil {
			return nil, resp.err
		}
		return resp.result, nil
	case <-timer.C:
		log.Warnf("Indexer request %s (%s) got no response within %v", id, method, c.timeout)
		return nil, fmt.Errorf("%s after %v: %w", method, c.timeout, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// handleMessage runs on the transport reader goroutine for every inbound line.
func (c *Client) handleMessage(line []byte) {
	var env responseEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		log.Errorf("Failed to parse indexer message %q: %v", truncate(line), err)
		return
	}

	id, ok := normalizeID(env.ID)
	switch {
	case ok && env.Result != nil:
		c.deliver(id, response{result: env.Result})
	case ok && env.Error != nil && env.Error.Message != "":
		c.deliver(id, response{err: env.Error})
	default:
		log.Warnf("Indexer message is missing JSON data: %q", truncate(line))
	}
}

func (c *Client) deliver(id string, resp response) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		log.Debugf("Dropping indexer response for unknown or expired request %s", id)
		return
	}
	ch <- resp
}

// normalizeID accepts string and numeric ids.
func normalizeID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

func outcome(err error) string {
	var rpcErr *RPCError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "transport_error"
	}
}

func truncate(line []byte) string {
	const max = 256
	if len(line) > max {
		return string(line[:max]) + "..."
	}
	return string(line)
}
