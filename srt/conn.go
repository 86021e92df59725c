package srt

import (
	"net"

	srtgo "github.com/zsiec/srtgo"
)

// connHandle is the subset of *srtgo.Conn that Server and Client depend
// on. Factoring it out as an interface lets tests exercise the admission,
// queueing and teardown logic against a fake transport without a real
// SRT socket.
type connHandle interface {
	ID() int64
	StreamID() string
	RemoteAddr() net.Addr
	Read(b []byte) (int, error)
	Write(b []byte, ttlMs int) (int, error)
	Close() error
	State() srtgo.SocketState
	Stats(clearIntervals bool) (*srtgo.Stats, error)
}
