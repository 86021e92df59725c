package srt

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// defaultSendTTLMs is the send_ttl passed to sendmsg when the Client is
// constructed without an explicit override.
const defaultSendTTLMs = 200

// idlePollInterval mirrors the queue-non-empty wait used while the write
// side is idle, so a broken connection is still observed promptly even
// when nothing is being sent. Var, not const, so tests can shrink it.
var idlePollInterval = 500 * time.Millisecond

// quiescenceDelay is the SRT reference client's workaround, preserved
// literally: the last datagrams written to the socket need this long to
// actually leave the wire before the socket is closed. Var, not const, so
// tests can shrink it.
var quiescenceDelay = 1 * time.Second

// ClientCallbacks is the embedder-supplied callback surface for Client.
// Every callback is invoked from a Client-owned goroutine.
type ClientCallbacks struct {
	OnSocketConnected    func()
	OnSocketDisconnected func()
	OnSocketError        func(message string)
}

// Client maintains one outbound SRT connection in sender mode, accepting
// enqueue requests from arbitrary producer goroutines and draining them
// to the socket in FIFO order on a single worker goroutine.
type Client struct {
	log *slog.Logger
	cb  ClientCallbacks

	maxPendingMessages int
	sendTTLMs          int

	conn connHandle

	mu        sync.Mutex
	closed    bool
	inFlight  int
	queueCh   chan []byte
	stopCh    chan struct{}
	closeOnce sync.Once

	workerDone chan struct{}
	stopOnce   sync.Once
}

// NewClient creates a Client with a send queue bounded to
// maxPendingMessages. sendTTLMs is the per-message SRT send TTL; 0 selects
// the 200ms default. If log is nil, slog.Default() is used.
func NewClient(maxPendingMessages, sendTTLMs int, cb ClientCallbacks, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if sendTTLMs <= 0 {
		sendTTLMs = defaultSendTTLMs
	}
	return &Client{
		log:                log.With("component", "srt-client"),
		cb:                 cb,
		maxPendingMessages: maxPendingMessages,
		sendTTLMs:          sendTTLMs,
	}
}

// Run resolves address as a numeric IPv6 or IPv4 literal, connects in
// sender mode with the given stream id, optional passphrase and SRT
// latency, and launches the worker. On rejection, Run returns a
// *StreamRejectedError carrying the server's normalized decision code.
func (c *Client) Run(address string, port uint16, streamID, password string, latencyMs int) error {
	if err := acquireRuntime(); err != nil {
		return &ConfigError{Op: "srt startup", Err: err}
	}

	dialAddr, ipv6Only, err := resolveDialAddress(address, port)
	if err != nil {
		releaseRuntime()
		return err
	}

	cfg := srtgo.DefaultConfig()
	cfg.StreamID = streamID
	cfg.Passphrase = password
	cfg.Latency = latencyMs
	cfg.IPv6Only = ipv6Only

	conn, err := srtgo.Dial(dialAddr, cfg)
	if err != nil {
		releaseRuntime()

		var rejErr *srtgo.RejectError
		if errors.As(err, &rejErr) {
			return &StreamRejectedError{Code: int(rejErr.Reason) - srtRejectPredefined}
		}
		return &ConfigError{Op: "dial", Err: err}
	}

	c.activate(conn)

	c.log.Info("connected", "address", address, "port", port, "stream_id", streamID)
	return nil
}

// activate wires conn into the Client and launches its worker and
// monitor goroutines. Split out of Run so tests can exercise the queueing
// and teardown logic against a fake connHandle.
func (c *Client) activate(conn connHandle) {
	c.conn = conn
	c.queueCh = make(chan []byte, c.maxPendingMessages)
	c.stopCh = make(chan struct{})
	c.workerDone = make(chan struct{})

	go c.worker()
	go c.monitor()
}

// resolveDialAddress parses address as a numeric literal, preferring an
// IPv6 interpretation, and formats it with port for Dial.
func resolveDialAddress(address string, port uint16) (string, bool, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return "", false, &ConfigError{Op: "address", Err: fmt.Errorf("invalid address %q", address)}
	}
	if ip.To4() == nil {
		return fmt.Sprintf("[%s]:%d", address, port), true, nil
	}
	return fmt.Sprintf("%s:%d", address, port), false, nil
}

// Send enqueues data for delivery. If the queue is at capacity, Send
// blocks until space is available or the Client becomes inactive, in
// which case it fails with ErrNotActive. Send never performs I/O on the
// calling goroutine.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.inFlight++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		last := c.closed && c.inFlight == 0
		c.mu.Unlock()
		if last {
			c.closeQueue()
		}
	}()

	select {
	case c.queueCh <- data:
		return nil
	case <-c.stopCh:
		return ErrNotActive
	}
}

// closeQueue closes queueCh exactly once, once it is safe to do so (no
// producer can still be attempting a send on it).
func (c *Client) closeQueue() {
	c.closeOnce.Do(func() { close(c.queueCh) })
}

// shutdown marks the Client inactive, wakes any blocked producers, and
// closes the send queue once the last in-flight Send has observed the
// shutdown. Idempotent.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	drained := c.inFlight == 0
	c.mu.Unlock()

	close(c.stopCh)
	if drained {
		c.closeQueue()
	}
}

// worker surfaces on_socket_connected, then drains the send queue to the
// wire in FIFO order. On a write error it stops accepting further sends,
// discards whatever remains queued, and surfaces on_socket_error; on a
// clean drain-then-stop it surfaces on_socket_disconnected once
// quiescence has elapsed.
func (c *Client) worker() {
	defer close(c.workerDone)

	if c.cb.OnSocketConnected != nil {
		c.cb.OnSocketConnected()
	}

	var sendErr error
	for item := range c.queueCh {
		if _, err := c.conn.Write(item, c.sendTTLMs); err != nil {
			sendErr = c.classifyWriteError(err)
			c.shutdown()
			break
		}
	}

	// Drain and discard anything left once the connection is known bad;
	// queueCh only closes once every in-flight Send has observed shutdown.
	for range c.queueCh {
	}

	time.Sleep(quiescenceDelay)
	c.conn.Close()

	if sendErr != nil {
		c.log.Warn("worker stopped on error", "error", sendErr)
		if c.cb.OnSocketError != nil {
			c.cb.OnSocketError(sendErr.Error())
		}
		return
	}

	c.log.Info("disconnected")
	if c.cb.OnSocketDisconnected != nil {
		c.cb.OnSocketDisconnected()
	}
}

// monitor polls the connection state while the worker may be idle,
// so a peer that disappears without the Client ever attempting another
// send is still observed within one idle interval.
func (c *Client) monitor() {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			switch c.conn.State() {
			case srtgo.SocketBroken, srtgo.SocketClosed:
				c.shutdown()
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) classifyWriteError(err error) error {
	switch c.conn.State() {
	case srtgo.SocketBroken, srtgo.SocketClosed:
		return &TransportFatalError{Message: "socket is closed or broken"}
	default:
		return &TransportFatalError{Message: err.Error()}
	}
}

// ReadSocketStats returns a stats snapshot for the Client's socket.
func (c *Client) ReadSocketStats(clearIntervals bool) (*SocketStats, error) {
	if c.conn == nil {
		return nil, ErrNotActive
	}
	return readSocketStats(c.conn, clearIntervals)
}

// Stop marks the Client inactive (so no further Send is accepted), waits
// for the worker to drain what is already queued, sleep the quiescence
// delay and close the socket, then releases the SRT runtime. Idempotent.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.shutdown()
		<-c.workerDone
		releaseRuntime()
		c.log.Info("stopped")
	})
}
