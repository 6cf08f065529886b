// Package reactor implements the single-threaded cooperative I/O
// multiplexer: one listener socket, a set of client sockets, and an
// internal self-pipe that lets another goroutine (a producer calling
// AddData) interrupt an in-progress or about-to-start Wait without
// sharing mutable readiness state.
//
// The primary implementation (reactor_linux.go) wraps epoll. A portable
// poll(2)-based fallback (reactor_poll.go) covers non-Linux unix targets
// using the same golang.org/x/sys/unix package.
package reactor

// Interest is a bitmask of the readiness events a registered fd cares
// about.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Readiness is the set of fds ready for reading and/or writing, returned
// by one Wait call. The reactor's own self-pipe is never included here;
// it is drained internally and only serves to make Wait return promptly.
type Readiness struct {
	Readable []int
	Writable []int
}
