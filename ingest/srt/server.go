// Package srt wires the core srt.Server and srt.Client onto a concrete
// publish/push workflow: admitting connections by stream key against an
// allowlist and forwarding their payload to a caller-supplied sink, and
// pushing bytes from a caller-supplied source to a remote listener.
package srt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	coresrt "github.com/zsiec/srt-endpoint/srt"
)

// srtLatencyMs is the SRT latency setting applied to accepted sockets.
const srtLatencyMs = 120

// statsPollInterval is how often a connected socket's trace statistics
// are sampled into Metrics while Publisher.metrics is set.
const statsPollInterval = 2 * time.Second

// SinkFactory opens a destination for a newly admitted stream key.
// Publisher closes the returned writer when the connection ends.
type SinkFactory func(streamKey string) (io.WriteCloser, error)

// Publisher accepts incoming SRT publish connections admitted by stream
// key and forwards each connection's payload to a sink opened by
// SinkFactory.
type Publisher struct {
	log     *slog.Logger
	addr    string
	allowed map[string]struct{}
	sinks   SinkFactory
	metrics *coresrt.Metrics

	server *coresrt.Server

	mu         sync.Mutex
	streamKeys map[int64]string
	sinkFor    map[int64]io.WriteCloser
	pollStop   map[int64]chan struct{}
}

// NewPublisher creates a Publisher listening on addr. Only stream keys
// present in allowedKeys are admitted; an empty allowedKeys rejects every
// connection. If metrics is non-nil, each connection's trace statistics
// are sampled into it every statsPollInterval while connected. If log is
// nil, slog.Default() is used.
func NewPublisher(addr string, allowedKeys []string, sinks SinkFactory, metrics *coresrt.Metrics, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[string]struct{}, len(allowedKeys))
	for _, k := range allowedKeys {
		allowed[k] = struct{}{}
	}
	p := &Publisher{
		log:        log.With("component", "srt-publisher"),
		addr:       addr,
		allowed:    allowed,
		sinks:      sinks,
		metrics:    metrics,
		streamKeys: make(map[int64]string),
		sinkFor:    make(map[int64]io.WriteCloser),
		pollStop:   make(map[int64]chan struct{}),
	}
	p.server = coresrt.NewServer(coresrt.ServerCallbacks{
		OnConnectRequest:     p.onConnectRequest,
		OnSocketConnected:    p.onSocketConnected,
		OnSocketDisconnected: p.onSocketDisconnected,
		OnSocketData:         p.onSocketData,
		OnFatalError:         p.onFatalError,
	}, p.log)
	return p
}

// Start binds the listener and begins accepting publish connections. It
// returns once the listener is up; callers should cancel ctx and rely on
// the background goroutine to call Stop.
func (p *Publisher) Start(ctx context.Context) error {
	host, port, err := splitHostPort(p.addr)
	if err != nil {
		return err
	}

	if err := p.server.Run(host, port, "", srtLatencyMs); err != nil {
		return fmt.Errorf("srt publisher: %w", err)
	}
	p.log.Info("listening", "addr", p.addr)

	go func() {
		<-ctx.Done()
		p.server.Stop()
	}()
	return nil
}

// onConnectRequest is invoked synchronously for every inbound connection
// attempt; it must answer promptly via AnswerConnectRequest.
func (p *Publisher) onConnectRequest(remoteAddr, streamID string) {
	key := extractStreamKey(streamID)

	_, ok := p.allowed[key]
	p.log.Info("publish request", "stream_key", key, "remote", remoteAddr, "admitted", ok)
	p.server.AnswerConnectRequest(ok)
}

func (p *Publisher) onSocketConnected(id int64, streamID string) {
	key := extractStreamKey(streamID)

	sink, err := p.sinks(key)
	if err != nil {
		p.log.Warn("sink open failed, closing connection", "stream_key", key, "error", err)
		p.server.CloseConnection(id)
		return
	}

	p.mu.Lock()
	p.streamKeys[id] = key
	p.sinkFor[id] = sink
	var stop chan struct{}
	if p.metrics != nil {
		stop = make(chan struct{})
		p.pollStop[id] = stop
	}
	p.mu.Unlock()

	if stop != nil {
		go p.pollStats(id, stop)
	}

	p.log.Info("publish started", "id", id, "stream_key", key)
}

// pollStats periodically samples id's trace statistics into p.metrics
// until stop is closed (by onSocketDisconnected).
func (p *Publisher) pollStats(id int64, stop chan struct{}) {
	ticker := time.NewTicker(statsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := p.server.ReadSocketStats(id, false)
			if err != nil {
				return
			}
			p.metrics.Observe("server", id, stats)
		case <-stop:
			return
		}
	}
}

func (p *Publisher) onSocketData(id int64, data []byte) {
	p.mu.Lock()
	sink := p.sinkFor[id]
	p.mu.Unlock()

	if sink == nil {
		return
	}
	if _, err := sink.Write(data); err != nil {
		p.log.Debug("sink write error", "stream_key", p.streamKeyFor(id), "error", err)
		p.server.CloseConnection(id)
	}
}

func (p *Publisher) onSocketDisconnected(id int64) {
	p.mu.Lock()
	key := p.streamKeys[id]
	sink := p.sinkFor[id]
	stop := p.pollStop[id]
	delete(p.streamKeys, id)
	delete(p.sinkFor, id)
	delete(p.pollStop, id)
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if p.metrics != nil {
		p.metrics.Forget("server", id)
	}
	if sink != nil {
		sink.Close()
	}
	p.log.Info("publish ended", "id", id, "stream_key", key)
}

func (p *Publisher) onFatalError(message string) {
	p.log.Error("srt publisher error", "error", message)
}

func (p *Publisher) streamKeyFor(id int64) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamKeys[id]
}

// ReadSocketStats returns a trace statistics snapshot for an admitted
// connection.
func (p *Publisher) ReadSocketStats(id int64, clearIntervals bool) (*coresrt.SocketStats, error) {
	return p.server.ReadSocketStats(id, clearIntervals)
}

func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}

func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("srt publisher: invalid address %q: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("srt publisher: invalid port in %q: %w", addr, err)
	}
	return host, uint16(port), nil
}
