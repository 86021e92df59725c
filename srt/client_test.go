package srt

import (
	"errors"
	"testing"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

var errTestWrite = errors.New("fakeConn: write failed")

func newTestClient(t *testing.T, maxPending int, cb ClientCallbacks) (*Client, *fakeConn) {
	t.Helper()
	c := NewClient(maxPending, 50, cb, nil)
	conn := newFakeConn(1, "feed")
	c.activate(conn)
	return c, conn
}

func TestClientSendDeliversInOrder(t *testing.T) {
	t.Parallel()

	c, conn := newTestClient(t, 4, ClientCallbacks{})
	defer c.Stop()

	for i := 0; i < 3; i++ {
		if err := c.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	deadline := time.After(time.Second)
	for {
		if len(conn.writtenMessages()) == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never drained queue")
		case <-time.After(time.Millisecond):
		}
	}

	got := conn.writtenMessages()
	for i, msg := range got {
		if len(msg) != 1 || msg[0] != byte(i) {
			t.Fatalf("message %d out of order: %v", i, got)
		}
	}
}

func TestClientSendAtCapacityCompletesAfterDrain(t *testing.T) {
	t.Parallel()

	// fakeConn writes are effectively instantaneous, so this test does not
	// observe a Send blocking. It bounds the queue to 1, sends 2 items
	// concurrently, and checks that both complete once the worker frees
	// capacity.
	c, _ := newTestClient(t, 1, ClientCallbacks{})
	defer c.Stop()

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(n int) {
			errCh <- c.Send([]byte{byte(n)})
		}(i)
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("send failed: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("send never unblocked")
		}
	}
}

func TestClientSendAfterStopReturnsErrNotActive(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, 4, ClientCallbacks{})
	c.Stop()

	if err := c.Send([]byte("late")); err != ErrNotActive {
		t.Fatalf("want ErrNotActive, got %v", err)
	}
}

func TestClientStopDrainsQueuedItemsBeforeClosing(t *testing.T) {
	t.Parallel()

	old := quiescenceDelay
	quiescenceDelay = time.Millisecond
	defer func() { quiescenceDelay = old }()

	c, conn := newTestClient(t, 8, ClientCallbacks{})

	for i := 0; i < 5; i++ {
		if err := c.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	c.Stop()

	got := conn.writtenMessages()
	if len(got) != 5 {
		t.Fatalf("want 5 drained messages, got %d", len(got))
	}
	if !conn.isClosed() {
		t.Fatal("want underlying conn closed after Stop")
	}
}

func TestClientMonitorDetectsBrokenSocket(t *testing.T) {
	t.Parallel()

	old := idlePollInterval
	idlePollInterval = 5 * time.Millisecond
	defer func() { idlePollInterval = old }()

	oldQ := quiescenceDelay
	quiescenceDelay = time.Millisecond
	defer func() { quiescenceDelay = oldQ }()

	var disconnected = make(chan struct{})
	c, conn := newTestClient(t, 4, ClientCallbacks{
		OnSocketDisconnected: func() { close(disconnected) },
	})
	defer c.Stop()

	conn.setState(srtgo.SocketBroken)

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("monitor never observed broken socket")
	}

	if err := c.Send([]byte("x")); err != ErrNotActive {
		t.Fatalf("want ErrNotActive after monitor-driven shutdown, got %v", err)
	}
}

func TestClientWriteErrorEmitsOnSocketError(t *testing.T) {
	t.Parallel()

	old := quiescenceDelay
	quiescenceDelay = time.Millisecond
	defer func() { quiescenceDelay = old }()

	errCh := make(chan string, 1)
	c, conn := newTestClient(t, 4, ClientCallbacks{
		OnSocketError: func(message string) { errCh <- message },
	})
	defer c.Stop()

	conn.setWriteErr(errTestWrite)
	if err := c.Send([]byte("boom")); err != nil {
		t.Fatalf("enqueue should succeed: %v", err)
	}

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("OnSocketError never fired")
	}
}
