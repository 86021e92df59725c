package srt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"
	"golang.org/x/sync/errgroup"
)

// admissionTimeout bounds how long the embedder has to answer
// on_connect_request before the Server auto-rejects. Fail closed. Var,
// not const, so tests can shrink it.
var admissionTimeout = 1000 * time.Millisecond

// maxReadSize is the MTU-sized read ceiling for per-connection reads.
const maxReadSize = 1500

// listenBacklog is the SRT listen backlog value. Run does not pass it to
// srtgo.Listen, so the listener's actual backlog is whatever srtgo.Listen
// configures.
const listenBacklog = 5

// Reject reason codes. SRT reserves codes below srtRejectPredefined for
// its own handshake-level reasons; application codes live above it.
const (
	srtRejectPredefined = 1000
	rejectCodeDenied    = srtRejectPredefined + 403
	rejectCodeTimeout   = srtRejectPredefined + 504
)

// noAwaitingConnection is the sentinel returned by
// GetAwaitingConnectionRequestId when no admission decision is pending.
const noAwaitingConnection int64 = -1

type pendingAdmission struct {
	socketID int64
	reply    chan bool
}

type serverConn struct {
	id   int64
	conn connHandle
}

// ServerCallbacks is the embedder-supplied callback surface.
// OnConnectRequest is invoked on the SRT library's listen-callback thread;
// OnSocketDisconnected is invoked on the calling goroutine when the
// disconnect comes from CloseConnection or Stop; every other invocation
// comes from a Server-owned goroutine. Callbacks must not block or call
// back into the Server synchronously.
type ServerCallbacks struct {
	OnSocketConnected    func(id int64, streamID string)
	OnSocketDisconnected func(id int64)
	OnSocketData         func(id int64, data []byte)
	OnConnectRequest     func(remoteAddr string, streamID string)
	OnFatalError         func(message string)
}

// Server presents a bound listening SRT endpoint, mediates per-connection
// admission using the SRT stream identifier, and multiplexes an arbitrary
// number of concurrent accepted connections.
type Server struct {
	log *slog.Logger
	cb  ServerCallbacks

	mu       sync.Mutex
	active   map[int64]*serverConn
	listener *srtgo.Listener

	admissionMu sync.Mutex
	pending     *pendingAdmission

	stopOnce sync.Once
	eg       *errgroup.Group
	egCancel context.CancelFunc
}

// NewServer creates a Server with the given callbacks. If log is nil,
// slog.Default() is used.
func NewServer(cb ServerCallbacks, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:    log.With("component", "srt-server"),
		cb:     cb,
		active: make(map[int64]*serverConn),
	}
}

// Run binds address:port, applies password/latency to accepted sockets,
// installs the admission callback, begins listening and enters the
// accept loop on background goroutines. Run returns once the listener is
// up; it does not block for the lifetime of the Server.
func (s *Server) Run(address string, port uint16, password string, latencyMs int) error {
	if err := acquireRuntime(); err != nil {
		return &ConfigError{Op: "srt startup", Err: err}
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyMs
	cfg.Passphrase = password

	listener, err := srtgo.Listen(fmt.Sprintf("%s:%d", address, port), cfg)
	if err != nil {
		releaseRuntime()
		return &ConfigError{Op: "listen", Err: err}
	}

	listener.SetAcceptRejectFunc(s.onNewConnection)

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	s.eg = eg
	s.egCancel = cancel

	eg.Go(func() error {
		s.acceptLoop(egCtx, listener)
		return nil
	})

	s.log.Info("listening", "address", address, "port", port)
	return nil
}

// onNewConnection is the SRT library's listen callback; it runs
// synchronously on the library's internal thread before accept returns.
// It records the tentative socket as the awaiting admission request,
// emits on_connect_request, and blocks for up to admissionTimeout for
// AnswerConnectRequest. The reply channel is pre-allocated before the
// callback to the embedder is emitted, so a reply sent before the wait
// begins is not lost. A reply that arrives after the timeout has fired is
// ignored and the request is rejected.
func (s *Server) onNewConnection(req srtgo.ConnRequest) srtgo.RejectReason {
	p := &pendingAdmission{
		socketID: req.ID,
		reply:    make(chan bool, 1),
	}

	s.admissionMu.Lock()
	s.pending = p
	s.admissionMu.Unlock()

	remote := ""
	if req.RemoteAddr != nil {
		remote = req.RemoteAddr.String()
	}
	if s.cb.OnConnectRequest != nil {
		s.cb.OnConnectRequest(remote, req.StreamID)
	}

	var accept bool
	var timedOut bool
	select {
	case accept = <-p.reply:
	case <-time.After(admissionTimeout):
		timedOut = true
	}

	s.admissionMu.Lock()
	if s.pending == p {
		s.pending = nil
	}
	s.admissionMu.Unlock()

	if accept {
		return srtgo.RejectReason(0)
	}
	if timedOut {
		s.log.Warn("admission timed out, rejecting", "stream_id", req.StreamID)
		return srtgo.RejectReason(rejectCodeTimeout)
	}
	s.log.Info("admission denied by embedder", "stream_id", req.StreamID)
	return srtgo.RejectReason(rejectCodeDenied)
}

// AnswerConnectRequest resolves the outstanding admission handshake. It
// must be called exactly once per on_connect_request; calls made after
// the handshake has already resolved (answered or timed out) are no-ops.
func (s *Server) AnswerConnectRequest(accept bool) {
	s.admissionMu.Lock()
	p := s.pending
	s.admissionMu.Unlock()

	if p == nil {
		return
	}
	select {
	case p.reply <- accept:
	default:
	}
}

// GetAwaitingConnectionRequestId returns the socket id currently awaiting
// an admission decision, or noAwaitingConnection (-1) if none.
func (s *Server) GetAwaitingConnectionRequestId() int64 {
	s.admissionMu.Lock()
	defer s.admissionMu.Unlock()

	if s.pending == nil {
		return noAwaitingConnection
	}
	return s.pending.socketID
}

// acceptLoop repeatedly accepts newly admitted connections and publishes
// them. It returns when the listener is closed by Stop.
func (s *Server) acceptLoop(ctx context.Context, listener *srtgo.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("accept error", "error", err)
			if s.cb.OnFatalError != nil {
				s.cb.OnFatalError(err.Error())
			}
			continue
		}
		s.acceptConnection(ctx, conn)
	}
}

// acceptConnection registers the newly accepted connection, emits
// on_socket_connected, and launches its read loop.
func (s *Server) acceptConnection(ctx context.Context, conn connHandle) {
	id := conn.ID()
	streamID := conn.StreamID()

	s.mu.Lock()
	s.active[id] = &serverConn{id: id, conn: conn}
	s.mu.Unlock()

	if s.cb.OnSocketConnected != nil {
		s.cb.OnSocketConnected(id, streamID)
	}

	s.eg.Go(func() error {
		s.readConnection(ctx, id, conn)
		return nil
	})
}

// readConnection reads datagrams from conn until it is closed or breaks,
// then disconnects it. The 1500-byte ceiling is an MTU-sized read.
func (s *Server) readConnection(ctx context.Context, id int64, conn connHandle) {
	buf := make([]byte, maxReadSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := conn.Read(buf)
		if err != nil || n == 0 {
			s.disconnectSocket(id)
			return
		}
		if s.cb.OnSocketData != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.cb.OnSocketData(id, data)
		}
	}
}

// disconnectSocket removes id from the active set, closes the underlying
// socket, and emits on_socket_disconnected exactly once. Subsequent calls
// for the same id (from a racing CloseConnection, or because the read
// loop observed the close it itself triggered) are no-ops.
func (s *Server) disconnectSocket(id int64) {
	s.mu.Lock()
	sc, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	sc.conn.Close()

	if s.cb.OnSocketDisconnected != nil {
		s.cb.OnSocketDisconnected(id)
	}
}

// CloseConnection closes an active connection by id. No-op if id is not
// in the active set.
func (s *Server) CloseConnection(id int64) {
	s.disconnectSocket(id)
}

// ReadSocketStats returns a stats snapshot for an active connection, or
// ErrNotFound if id is not active.
func (s *Server) ReadSocketStats(id int64, clearIntervals bool) (*SocketStats, error) {
	s.mu.Lock()
	sc, ok := s.active[id]
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	return readSocketStats(sc.conn, clearIntervals)
}

// Stop terminates the accept loop, closes all active connections, closes
// the listening socket, and releases the SRT runtime reference. Idempotent
// and safe to call from any goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		listener := s.listener
		ids := make([]int64, 0, len(s.active))
		for id := range s.active {
			ids = append(ids, id)
		}
		s.mu.Unlock()

		if s.egCancel != nil {
			s.egCancel()
		}
		if listener != nil {
			listener.Close()
		}

		for _, id := range ids {
			s.disconnectSocket(id)
		}

		if s.eg != nil {
			_ = s.eg.Wait()
		}

		releaseRuntime()
		s.log.Info("stopped")
	})
}
