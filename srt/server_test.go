package srt

import (
	"context"
	"sync"
	"testing"
	"time"

	srtgo "github.com/zsiec/srtgo"
	"golang.org/x/sync/errgroup"
)

func newTestServer(t *testing.T, cb ServerCallbacks) *Server {
	t.Helper()
	return NewServer(cb, nil)
}

func TestOnNewConnectionAccept(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, ServerCallbacks{})

	done := make(chan srtgo.RejectReason, 1)
	go func() {
		done <- s.onNewConnection(srtgo.ConnRequest{ID: 7, StreamID: "alice"})
	}()

	deadline := time.After(time.Second)
	for {
		if s.GetAwaitingConnectionRequestId() == 7 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("admission request never became visible")
		case <-time.After(time.Millisecond):
		}
	}

	s.AnswerConnectRequest(true)

	select {
	case reason := <-done:
		if reason != srtgo.RejectReason(0) {
			t.Fatalf("want accept (0), got %v", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("onNewConnection never returned")
	}

	if id := s.GetAwaitingConnectionRequestId(); id != noAwaitingConnection {
		t.Fatalf("want no awaiting connection after resolution, got %d", id)
	}
}

func TestOnNewConnectionDeny(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, ServerCallbacks{})

	done := make(chan srtgo.RejectReason, 1)
	go func() {
		done <- s.onNewConnection(srtgo.ConnRequest{ID: 9, StreamID: "bob"})
	}()

	for s.GetAwaitingConnectionRequestId() != 9 {
		time.Sleep(time.Millisecond)
	}
	s.AnswerConnectRequest(false)

	reason := <-done
	if reason != srtgo.RejectReason(rejectCodeDenied) {
		t.Fatalf("want denied (%d), got %v", rejectCodeDenied, reason)
	}
}

func TestOnNewConnectionTimeout(t *testing.T) {
	t.Parallel()

	old := admissionTimeout
	admissionTimeout = 20 * time.Millisecond
	defer func() { admissionTimeout = old }()

	s := newTestServer(t, ServerCallbacks{})

	reason := s.onNewConnection(srtgo.ConnRequest{ID: 3, StreamID: "slow"})
	if reason != srtgo.RejectReason(rejectCodeTimeout) {
		t.Fatalf("want timeout (%d), got %v", rejectCodeTimeout, reason)
	}
}

func TestAnswerConnectRequestNoopWithoutPending(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, ServerCallbacks{})
	s.AnswerConnectRequest(true)

	if id := s.GetAwaitingConnectionRequestId(); id != noAwaitingConnection {
		t.Fatalf("want no awaiting connection, got %d", id)
	}
}

func TestAcceptConnectionDeliversDataAndDisconnect(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var connectedID int64 = -1
	var disconnectedID int64 = -1
	received := make(chan []byte, 4)

	s := newTestServer(t, ServerCallbacks{
		OnSocketConnected: func(id int64, streamID string) {
			mu.Lock()
			connectedID = id
			mu.Unlock()
		},
		OnSocketDisconnected: func(id int64) {
			mu.Lock()
			disconnectedID = id
			mu.Unlock()
		},
		OnSocketData: func(id int64, data []byte) {
			received <- data
		},
	})
	s.eg = &errgroup.Group{}

	conn := newFakeConn(11, "carol")
	s.acceptConnection(context.Background(), conn)

	mu.Lock()
	if connectedID != 11 {
		t.Fatalf("want connected id 11, got %d", connectedID)
	}
	mu.Unlock()

	conn.push([]byte("hello"))
	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("want hello, got %q", data)
		}
	case <-time.After(time.Second):
		t.Fatal("data callback never fired")
	}

	conn.closeReads()

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		got := disconnectedID
		mu.Unlock()
		if got == 11 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("disconnect callback never fired")
		case <-time.After(time.Millisecond):
		}
	}

	if !conn.isClosed() {
		t.Fatal("want underlying conn closed")
	}

	// A second disconnect for the same id must be a no-op: it must not
	// call OnSocketDisconnected again.
	mu.Lock()
	disconnectedID = -1
	mu.Unlock()
	s.disconnectSocket(11)
	mu.Lock()
	if disconnectedID != -1 {
		t.Fatal("disconnectSocket fired twice for the same id")
	}
	mu.Unlock()
}

func TestCloseConnectionUnknownIDIsNoop(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, ServerCallbacks{})
	s.CloseConnection(999)
}

func TestReadSocketStatsNotFound(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, ServerCallbacks{})
	if _, err := s.ReadSocketStats(123, false); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestReadSocketStatsActive(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, ServerCallbacks{})
	s.eg = &errgroup.Group{}

	conn := newFakeConn(21, "dave")
	s.acceptConnection(context.Background(), conn)

	stats, err := s.ReadSocketStats(21, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PktSentTotal != 42 {
		t.Fatalf("want PktSentTotal 42, got %d", stats.PktSentTotal)
	}
}
