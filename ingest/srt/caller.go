package srt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	coresrt "github.com/zsiec/srt-endpoint/srt"
)

// pushQueueDepth is the Client send queue depth used for pushed streams.
const pushQueueDepth = 64

// PushRequest describes a remote SRT listener to push a stream to.
type PushRequest struct {
	Address   string `json:"address"`
	Port      uint16 `json:"port"`
	StreamKey string `json:"streamKey"`
	StreamID  string `json:"streamId,omitempty"`
	Password  string `json:"password,omitempty"`
}

type activePush struct {
	req    PushRequest
	client *coresrt.Client
	cancel context.CancelFunc
}

// Pusher manages outbound SRT pushes, dialing remote SRT listeners and
// streaming bytes read from a caller-supplied source onto each
// connection's bounded send queue.
type Pusher struct {
	log *slog.Logger

	mu     sync.Mutex
	pushes map[string]*activePush
}

// NewPusher creates a Pusher. If log is nil, slog.Default() is used.
func NewPusher(log *slog.Logger) *Pusher {
	if log == nil {
		log = slog.Default()
	}
	return &Pusher{
		log:    log.With("component", "srt-pusher"),
		pushes: make(map[string]*activePush),
	}
}

// Push dials the remote SRT listener synchronously, returning an error if
// the connection fails or is rejected. On success, bytes read from source
// are forwarded to the connection's send queue from a background
// goroutine until source is exhausted, ctx is cancelled, or Stop is
// called.
func (p *Pusher) Push(ctx context.Context, req PushRequest, source io.Reader) error {
	if req.Address == "" {
		return fmt.Errorf("address is required")
	}
	if req.StreamKey == "" {
		return fmt.Errorf("streamKey is required")
	}

	p.mu.Lock()
	if _, exists := p.pushes[req.StreamKey]; exists {
		p.mu.Unlock()
		return fmt.Errorf("push already active for stream key %q", req.StreamKey)
	}
	p.mu.Unlock()

	streamID := req.StreamID
	if streamID == "" {
		streamID = "live/" + req.StreamKey
	}

	pushCtx, cancel := context.WithCancel(ctx)

	client := coresrt.NewClient(pushQueueDepth, 0, coresrt.ClientCallbacks{
		OnSocketDisconnected: func() { p.onPushEnded(req.StreamKey) },
		OnSocketError: func(message string) {
			p.log.Warn("push socket error", "stream_key", req.StreamKey, "error", message)
			p.onPushEnded(req.StreamKey)
		},
	}, p.log)

	if err := client.Run(req.Address, req.Port, streamID, req.Password, 0); err != nil {
		cancel()
		return fmt.Errorf("srt push dial: %w", err)
	}

	p.mu.Lock()
	if _, exists := p.pushes[req.StreamKey]; exists {
		p.mu.Unlock()
		cancel()
		client.Stop()
		return fmt.Errorf("push already active for stream key %q", req.StreamKey)
	}
	p.pushes[req.StreamKey] = &activePush{req: req, client: client, cancel: cancel}
	p.mu.Unlock()

	p.log.Info("push connected", "address", req.Address, "stream_key", req.StreamKey)

	go p.feed(pushCtx, req.StreamKey, client, source)

	return nil
}

func (p *Pusher) feed(ctx context.Context, streamKey string, client *coresrt.Client, source io.Reader) {
	buf := make([]byte, 1316)
	for {
		if ctx.Err() != nil {
			break
		}
		n, err := source.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := client.Send(chunk); sendErr != nil {
				p.log.Debug("push send error", "stream_key", streamKey, "error", sendErr)
				break
			}
		}
		if err != nil {
			if err != io.EOF {
				p.log.Debug("push source read error", "stream_key", streamKey, "error", err)
			}
			break
		}
	}

	client.Stop()
}

func (p *Pusher) onPushEnded(streamKey string) {
	p.mu.Lock()
	ap, ok := p.pushes[streamKey]
	if ok {
		delete(p.pushes, streamKey)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	ap.cancel()
	p.log.Info("push ended", "stream_key", streamKey)
}

// Stop cancels an active push by stream key.
func (p *Pusher) Stop(streamKey string) error {
	p.mu.Lock()
	ap, ok := p.pushes[streamKey]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active push for stream key %q", streamKey)
	}

	ap.client.Stop()
	return nil
}

// ActivePushes returns the PushRequest of every push currently active.
func (p *Pusher) ActivePushes() []PushRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PushRequest, 0, len(p.pushes))
	for _, ap := range p.pushes {
		out = append(out, ap.req)
	}
	return out
}
