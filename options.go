package livegrapher

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/frc3512/livegrapher-host/internal/protocol"
)

// Options configures a new Engine. The zero value is not directly usable;
// call DefaultOptions and override individual fields.
type Options struct {
	// BindAddress is the interface address the listener binds to.
	BindAddress string

	// ListenBacklog is the backlog argument passed to listen(2).
	ListenBacklog int

	// TCPNoDelay disables Nagle's algorithm on accepted client sockets,
	// which matters for a protocol that streams many small frames.
	TCPNoDelay bool

	// MaxQueueBytesPerClient bounds the pending write queue for a single
	// client connection. Once a queued frame would push the queue past
	// this bound, the whole frame is dropped (never split mid-frame) and
	// the client's dropped-frame counter is incremented. Zero means
	// unbounded, which is almost never what a production deployment
	// wants.
	MaxQueueBytesPerClient int

	// CompatBuggyIDMask switches the wire codec to the historically
	// buggy 6-bit DatasetId mask (0x2F instead of the correct 0x3F), for
	// interop with a client or host built against that bug. Off by
	// default.
	CompatBuggyIDMask bool

	// AcceptIPBurst/AcceptIPRate/AcceptGlobalBurst/AcceptGlobalRate
	// configure the token-bucket accept limiter that guards against a
	// connection flood. See internal/limits.AcceptLimiterConfig for
	// field semantics.
	AcceptIPBurst     int
	AcceptIPRate      float64
	AcceptGlobalBurst int
	AcceptGlobalRate  float64

	// ShutdownTimeout bounds how long Shutdown waits for the reactor
	// goroutine to exit before returning anyway.
	ShutdownTimeout time.Duration

	// Logger receives the engine's structured log output. Defaults to a
	// no-op logger; callers embedding the engine in a larger process
	// normally pass one built by internal/obslog.
	Logger zerolog.Logger
}

// DefaultOptions returns sane defaults for every field. Callers typically
// start from this and override only what they need.
func DefaultOptions() Options {
	return Options{
		BindAddress:            "0.0.0.0",
		ListenBacklog:          16,
		TCPNoDelay:             true,
		MaxQueueBytesPerClient: 1 << 20, // 1 MiB
		CompatBuggyIDMask:      false,
		AcceptIPBurst:          10,
		AcceptIPRate:           1.0,
		AcceptGlobalBurst:      100,
		AcceptGlobalRate:       20.0,
		ShutdownTimeout:        5 * time.Second,
		Logger:                 zerolog.Nop(),
	}
}

func (o Options) idMask() byte {
	if o.CompatBuggyIDMask {
		return protocol.IDMaskCompat
	}
	return protocol.IDMask
}
