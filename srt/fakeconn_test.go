package srt

import (
	"errors"
	"net"
	"sync"

	srtgo "github.com/zsiec/srtgo"
)

// fakeConn is an in-process stand-in for *srtgo.Conn, used so tests can
// exercise admission, queueing and teardown logic without a real SRT
// socket.
type fakeConn struct {
	id       int64
	streamID string
	addr     net.Addr

	mu      sync.Mutex
	state   srtgo.SocketState
	closed  bool
	written [][]byte
	writeErr error

	readCh chan []byte
}

func newFakeConn(id int64, streamID string) *fakeConn {
	return &fakeConn{
		id:       id,
		streamID: streamID,
		addr:     &net.IPAddr{IP: net.ParseIP("127.0.0.1")},
		readCh:   make(chan []byte, 16),
	}
}

func (f *fakeConn) ID() int64            { return f.id }
func (f *fakeConn) StreamID() string     { return f.streamID }
func (f *fakeConn) RemoteAddr() net.Addr { return f.addr }

func (f *fakeConn) Read(b []byte) (int, error) {
	data, ok := <-f.readCh
	if !ok {
		return 0, errors.New("fakeConn: closed")
	}
	n := copy(b, data)
	return n, nil
}

// push delivers a datagram to a future Read call, simulating inbound data.
func (f *fakeConn) push(data []byte) {
	f.readCh <- data
}

// closeReads makes the next Read return an error, simulating a peer
// hangup observed by the read loop.
func (f *fakeConn) closeReads() {
	close(f.readCh)
}

func (f *fakeConn) Write(b []byte, ttlMs int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.written = append(f.written, cp)
	return len(b), nil
}

func (f *fakeConn) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeConn) writtenMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) State() srtgo.SocketState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) setState(s srtgo.SocketState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeConn) Stats(clearIntervals bool) (*srtgo.Stats, error) {
	return &srtgo.Stats{
		PktSentTotal: 42,
		PktRecvTotal: 7,
	}, nil
}

// fakeStatsSource lets stats_test.go exercise readSocketStats in
// isolation from connHandle's other methods.
type fakeStatsSource struct {
	stats *srtgo.Stats
	err   error
}

func (f *fakeStatsSource) Stats(clearIntervals bool) (*srtgo.Stats, error) {
	return f.stats, f.err
}
