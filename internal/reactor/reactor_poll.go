//go:build !linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Reactor is the poll(2)-backed fallback multiplexer for non-Linux unix
// targets, built on the same golang.org/x/sys/unix package as the epoll
// implementation. Semantically equivalent to reactor_linux.go: level-
// triggered read readiness, per-fd interest toggling, and a self-pipe
// cancel path.
type Reactor struct {
	pipe *selfPipe

	mu        sync.Mutex
	interests map[int]Interest
}

// New creates the self-pipe and an empty interest set.
func New() (*Reactor, error) {
	pipe, err := newSelfPipe()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		pipe:      pipe,
		interests: make(map[int]Interest),
	}, nil
}

// Register adds fd to the poll set with the given interest.
func (r *Reactor) Register(fd int, interest Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interests[fd] = interest
	return nil
}

// SetInterest changes fd's registered interest.
func (r *Reactor) SetInterest(fd int, interest Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interests[fd] = interest
	return nil
}

// Deregister removes fd from the poll set.
func (r *Reactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.interests, fd)
	return nil
}

func pollMask(i Interest) int16 {
	var mask int16
	if i&InterestRead != 0 {
		mask |= unix.POLLIN
	}
	if i&InterestWrite != 0 {
		mask |= unix.POLLOUT
	}
	return mask
}

// Wait blocks in poll(2) until at least one registered fd is ready or
// Cancel is called.
func (r *Reactor) Wait() (Readiness, error) {
	for {
		r.mu.Lock()
		fds := make([]unix.PollFd, 0, len(r.interests)+1)
		fds = append(fds, unix.PollFd{Fd: int32(r.pipe.r), Events: unix.POLLIN})
		for fd, interest := range r.interests {
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: pollMask(interest)})
		}
		r.mu.Unlock()

		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return Readiness{}, err
		}
		if n == 0 {
			continue
		}

		var ready Readiness
		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			fd := int(pfd.Fd)
			if fd == r.pipe.r {
				r.pipe.drain()
				continue
			}
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				ready.Readable = append(ready.Readable, fd)
			}
			if pfd.Revents&unix.POLLOUT != 0 {
				ready.Writable = append(ready.Writable, fd)
			}
		}
		return ready, nil
	}
}

// Cancel interrupts a blocked or about-to-start Wait from any goroutine.
func (r *Reactor) Cancel() {
	r.pipe.cancel()
}

// Close releases the self-pipe.
func (r *Reactor) Close() error {
	r.pipe.close()
	return nil
}
