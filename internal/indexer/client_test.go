package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndexer hands out in-memory connections and answers requests with respond.
type fakeIndexer struct {
	t       *testing.T
	dials   atomic.Int32
	respond func(req Request, w io.Writer)

	mu    sync.Mutex
	conns []net.Conn
}

func newFakeIndexer(t *testing.T, respond func(req Request, w io.Writer)) *fakeIndexer {
	f := &fakeIndexer{t: t, respond: respond}
	t.Cleanup(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, conn := range f.conns {
			conn.Close()
		}
	})
	return f
}

func (f *fakeIndexer) dial(ctx context.Context, network, address string) (net.Conn, error) {
	f.dials.Add(1)
	client, server := net.Pipe()
	f.mu.Lock()
	f.conns = append(f.conns, server)
	f.mu.Unlock()
	go f.serve(server)
	return client, nil
}

func (f *fakeIndexer) serve(conn net.Conn) {
	rd := bufio.NewReader(conn)
	for {
		line, err := rd.ReadBytes('\n')
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			f.t.Errorf("server got invalid request %q: %v", line, err)
			return
		}
		f.respond(req, conn)
	}
}

// closeServerSide simulates the indexer dropping every connection.
func (f *fakeIndexer) closeServerSide() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		conn.Close()
	}
	f.conns = nil
}

func writeLine(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format+"\n", args...)
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) SetErrorState(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func pendingLen(c *Client) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func TestGetBalanceSuccess(t *testing.T) {
	var gotReq Request
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		gotReq = req
		writeLine(w, `{"jsonrpc":"2.0","id":%q,"result":{"confirmed":100,"unconfirmed":0}}`, req.ID)
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial))

	balance, err := c.GetBalance(context.Background(), "qrjxz3t2zyxh5m7a9g8ewx3e5h0v4qg3lvgj3rsc6n")
	require.NoError(t, err)
	assert.Equal(t, &Balance{Confirmed: 100, Unconfirmed: 0}, balance)

	assert.Equal(t, "2.0", gotReq.JSONRPC)
	assert.Equal(t, MethodGetBalance, gotReq.Method)
	assert.Equal(t, []interface{}{"qrjxz3t2zyxh5m7a9g8ewx3e5h0v4qg3lvgj3rsc6n"}, gotReq.Params)
	assert.NotEmpty(t, gotReq.ID)
	assert.Equal(t, 0, pendingLen(c))
}

func TestGetBalanceIndexerError(t *testing.T) {
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		writeLine(w, `{"jsonrpc":"2.0","id":%q,"error":{"code":1,"message":"bad address"}}`, req.ID)
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial))

	balance, err := c.GetBalance(context.Background(), "nope")
	assert.Nil(t, balance)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "bad address", rpcErr.Message)
	assert.Equal(t, 1, rpcErr.Code)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 0, pendingLen(c))
}

func TestCallTimeout(t *testing.T) {
	f := newFakeIndexer(t, func(req Request, w io.Writer) {})
	c := NewClient("fulcrum:50001", WithDialer(f.dial), WithCallTimeout(100*time.Millisecond))

	start := time.Now()
	balance, err := c.GetBalance(context.Background(), "addr")
	elapsed := time.Since(start)

	assert.Nil(t, balance)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, 0, pendingLen(c))
}

func TestCallContextCancelled(t *testing.T) {
	f := newFakeIndexer(t, func(req Request, w io.Writer) {})
	c := NewClient("fulcrum:50001", WithDialer(f.dial))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, MethodGetBalance, "addr")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, pendingLen(c))
}

func TestMalformedPayloadsAreDropped(t *testing.T) {
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		writeLine(w, `this is not json`)
		writeLine(w, `{"jsonrpc":"2.0","id":%q}`, req.ID)
		writeLine(w, `{"jsonrpc":"2.0","result":{"confirmed":1,"unconfirmed":1}}`)
		writeLine(w, `{"jsonrpc":"2.0","id":%q,"error":{"code":2}}`, req.ID)
		writeLine(w, `{"jsonrpc":"2.0","id":%q,"result":{"confirmed":5,"unconfirmed":-2}}`, req.ID)
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial))

	balance, err := c.GetBalance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, &Balance{Confirmed: 5, Unconfirmed: -2}, balance)
	assert.True(t, c.Connected())
}

func TestConcurrentCallsAreIsolated(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Request
	)
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		mu.Lock()
		received = append(received, req)
		if len(received) < 2 {
			mu.Unlock()
			return
		}
		batch := received
		received = nil
		mu.Unlock()

		// answer in reverse order
		for i := len(batch) - 1; i >= 0; i-- {
			confirmed := 1
			if batch[i].Params[0] == "addr-b" {
				confirmed = 2
			}
			writeLine(w, `{"jsonrpc":"2.0","id":%q,"result":{"confirmed":%d,"unconfirmed":0}}`, batch[i].ID, confirmed)
		}
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial))
	require.NoError(t, c.transport.Connect(context.Background()))

	var wg sync.WaitGroup
	results := make(map[string]*Balance)
	var resMu sync.Mutex
	for _, addr := range []string{"addr-a", "addr-b"} {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			balance, err := c.GetBalance(context.Background(), addr)
			assert.NoError(t, err)
			resMu.Lock()
			results[addr] = balance
			resMu.Unlock()
		}(addr)
	}
	wg.Wait()

	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results["addr-a"].Confirmed)
	assert.Equal(t, int64(2), results["addr-b"].Confirmed)
	assert.Equal(t, int32(1), f.dials.Load())
}

func TestCallConnectsOnceWhenDisconnected(t *testing.T) {
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		writeLine(w, `{"jsonrpc":"2.0","id":%q,"result":{"confirmed":0,"unconfirmed":0}}`, req.ID)
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial))
	assert.False(t, c.Connected())

	_, err := c.GetBalance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.dials.Load())

	_, err = c.GetBalance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.dials.Load(), "connected client must not dial again")

	f.closeServerSide()
	assert.Eventually(t, func() bool { return !c.Connected() }, time.Second, 5*time.Millisecond)

	_, err = c.GetBalance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.dials.Load())
}

func TestDialFailureReportsError(t *testing.T) {
	reporter := &recordingReporter{}
	dials := 0
	c := NewClient("fulcrum:50001",
		WithErrorReporter(reporter),
		WithDialer(func(ctx context.Context, network, address string) (net.Conn, error) {
			dials++
			return nil, errors.New("connection refused")
		}),
	)

	_, err := c.GetBalance(context.Background(), "addr")
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 1, dials)
	assert.Equal(t, 1, reporter.count())
	assert.Equal(t, 0, pendingLen(c))
}

func TestLateResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	var first atomic.Bool
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		if first.CompareAndSwap(false, true) {
			go func() {
				<-release
				writeLine(w, `{"jsonrpc":"2.0","id":%q,"result":{"confirmed":9,"unconfirmed":9}}`, req.ID)
			}()
			return
		}
		writeLine(w, `{"jsonrpc":"2.0","id":%q,"result":{"confirmed":3,"unconfirmed":0}}`, req.ID)
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial), WithCallTimeout(50*time.Millisecond))

	_, err := c.GetBalance(context.Background(), "addr")
	require.ErrorIs(t, err, ErrTimeout)
	close(release)

	balance, err := c.GetBalance(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance.Confirmed)
	assert.Equal(t, 0, pendingLen(c))
}

func TestNumericResponseID(t *testing.T) {
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		writeLine(w, `{"jsonrpc":"2.0","id":%s,"result":["Fulcrum 1.9.8","1.4"]}`, req.ID)
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial), WithIDGenerator(func() string { return "7" }))

	version, err := c.ServerVersion(context.Background(), "crypto-bot", "1.4")
	require.NoError(t, err)
	assert.Equal(t, "Fulcrum 1.9.8", version)
}

func TestNullResultIsAnError(t *testing.T) {
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		writeLine(w, `{"jsonrpc":"2.0","id":%q,"result":null}`, req.ID)
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial))

	_, err := c.GetBalance(context.Background(), "addr")
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestGetHistory(t *testing.T) {
	var gotReq Request
	f := newFakeIndexer(t, func(req Request, w io.Writer) {
		gotReq = req
		writeLine(w, `{"jsonrpc":"2.0","id":%q,"result":[{"height":200004,"tx_hash":"acc3758bd2a26f869fcc67d48ff30b96464d476bca82c1cd6656e7d506816412"},{"height":0,"tx_hash":"f3e1bf48975b8d6060a9de8884296abb80be618dc00ae3cb2f6cee3085e09403","fee":200}]}`, req.ID)
	})
	c := NewClient("fulcrum:50001", WithDialer(f.dial))

	history, err := c.GetHistory(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(200004), history[0].Height)
	assert.Equal(t, int64(200), history[1].Fee)
	assert.Equal(t, MethodGetScripthashHistory, gotReq.Method)
	assert.Equal(t, []interface{}{"8b01df4e368ea28f8dc0423bcf7a4923e3a12d307c875e47a0cfbf90b5c39161"}, gotReq.Params)
}

func TestScriptHash(t *testing.T) {
	hash, err := ScriptHash("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", &chaincfg.MainNetParams)
	require.NoError(t, err)
	assert.Equal(t, "8b01df4e368ea28f8dc0423bcf7a4923e3a12d307c875e47a0cfbf90b5c39161", hash)

	_, err = ScriptHash("not-an-address", &chaincfg.MainNetParams)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ScriptHash("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", &chaincfg.TestNet3Params)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestTransportWriteWithoutConnection(t *testing.T) {
	tr := newTransport("fulcrum:50001", nil, func([]byte) {})
	assert.ErrorIs(t, tr.Write(Request{}), ErrNotConnected)
	tr.Close()
	assert.False(t, tr.Connected())
}

func TestConnectDoesNotBlockStateWhileDialing(t *testing.T) {
	f := newFakeIndexer(t, func(req Request, w io.Writer) {})
	dialing := make(chan struct{})
	release := make(chan struct{})
	tr := newTransport("fulcrum:50001", func(ctx context.Context, network, address string) (net.Conn, error) {
		close(dialing)
		<-release
		return f.dial(ctx, network, address)
	}, func([]byte) {})

	done := make(chan error, 1)
	go func() { done <- tr.Connect(context.Background()) }()
	<-dialing

	checked := make(chan bool, 1)
	go func() { checked <- tr.Connected() }()
	select {
	case connected := <-checked:
		assert.False(t, connected)
	case <-time.After(time.Second):
		t.Fatal("Connected blocked during dial")
	}
	tr.Close()

	close(release)
	require.NoError(t, <-done)
	assert.True(t, tr.Connected())
	require.NoError(t, tr.Connect(context.Background()))
	assert.Equal(t, int32(1), f.dials.Load())
	tr.Close()
	assert.False(t, tr.Connected())
}

func TestZeroDialTimeoutKeepsDefaultDialer(t *testing.T) {
	c := NewClient("fulcrum:50001", WithDialTimeout(0))
	assert.NotNil(t, c.transport.dial)
}
