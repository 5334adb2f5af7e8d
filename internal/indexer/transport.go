package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cryptofather/crypto-bot/internal/state"
	log "github.com/sirupsen/logrus"
)

const (
	// maxLineSize bounds a single inbound JSON document.
	maxLineSize  = 4 * 1024 * 1024
	writeTimeout = 10 * time.Second
)

var ErrNotConnected = errors.New("indexer socket is not connected")

// Dialer opens the raw stream to the indexer.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Transport owns one persistent TCP connection to the indexer and frames
// JSON documents as newline-terminated lines in both directions.
type Transport struct {
	addr     string
	dial     Dialer
	reporter state.ErrorReporter
	bus      state.Publisher
	handler  func(line []byte)

	mu   sync.Mutex
	conn net.Conn

	// connectMu serializes dials without holding mu
	connectMu sync.Mutex
	writeMu   sync.Mutex
}

func newTransport(addr string, dial Dialer, handler func(line []byte)) *Transport {
	return &Transport{
		addr:    addr,
		dial:    dial,
		handler: handler,
	}
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Connect opens the socket. It is a no-op while a connection is already up.
func (t *Transport) Connect(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	if t.Connected() {
		return nil
	}

	conn, err := t.dial(ctx, "tcp", t.addr)
	if err != nil {
		log.Errorf("Failed to connect to indexer %s: %v", t.addr, err)
		t.reportError(fmt.Errorf("connect indexer %s: %w", t.addr, err))
		return fmt.Errorf("connect indexer %s: %w", t.addr, err)
	}

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	t.conn = conn
	t.mu.Unlock()
	log.Infof("Connected to indexer %s", t.addr)

	go t.readLoop(conn)
	t.publish(state.IndexerConnected)
	return nil
}

// Write encodes v as one JSON line.
func (t *Transport) Write(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode indexer request: %w", err)
	}
	payload = append(payload, '\n')

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		log.Debugf("Set indexer write deadline: %v", err)
	}
	_, err = conn.Write(payload)
	t.writeMu.Unlock()
	if err != nil {
		t.drop(conn, err)
		return fmt.Errorf("write to indexer %s: %w", t.addr, err)
	}
	return nil
}

// Close tears the connection down. Safe to call when already disconnected.
func (t *Transport) Close() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		log.Debugf("Close indexer connection: %v", err)
	}
	log.Infof("Closed indexer connection %s", t.addr)
	t.publish(state.IndexerDisconnected)
}

func (t *Transport) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		t.handler(msg)
	}
	t.drop(conn, scanner.Err())
}

// drop forgets conn if it is still the current one. A nil err means the peer closed the stream.
func (t *Transport) drop(conn net.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		// already replaced or closed by us
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.mu.Unlock()

	_ = conn.Close()
	if err != nil {
		log.Errorf("Indexer connection %s failed: %v", t.addr, err)
		t.reportError(fmt.Errorf("indexer connection %s: %w", t.addr, err))
	} else {
		log.Warnf("Indexer %s closed the connection", t.addr)
	}
	t.publish(state.IndexerDisconnected)
}

func (t *Transport) reportError(err error) {
	if t.reporter != nil {
		t.reporter.SetErrorState(err)
	}
}

func (t *Transport) publish(event state.EventType) {
	if t.bus != nil {
		t.bus.Publish(event, t.addr)
	}
}
