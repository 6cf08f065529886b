//go:build linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Reactor is the epoll-backed readiness multiplexer
// (epoll_create1/epoll_ctl/epoll_wait), with per-connection write-interest
// toggling and a self-pipe cancel path for cross-goroutine wakeup.
type Reactor struct {
	epfd int
	pipe *selfPipe

	mu        sync.Mutex
	interests map[int]Interest

	events []unix.EpollEvent
}

// New creates an epoll instance and its self-pipe, registering the
// pipe's read end for read-readiness.
func New() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	pipe, err := newSelfPipe()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	r := &Reactor{
		epfd:      epfd,
		pipe:      pipe,
		interests: make(map[int]Interest),
		events:    make([]unix.EpollEvent, 256),
	}

	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(pipe.r)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, pipe.r, ev); err != nil {
		pipe.close()
		unix.Close(epfd)
		return nil, err
	}

	return r, nil
}

func epollMask(i Interest) uint32 {
	var mask uint32
	if i&InterestRead != 0 {
		mask |= unix.EPOLLIN
	}
	if i&InterestWrite != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// Register adds fd to the epoll set with the given interest.
func (r *Reactor) Register(fd int, interest Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interests[fd] = interest
	ev := &unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

// SetInterest changes fd's registered interest (e.g. arming or clearing
// write-readiness between reactor iterations based on
// Conn.HasPendingWrite).
func (r *Reactor) SetInterest(fd int, interest Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.interests[fd]; ok && cur == interest {
		return nil
	}
	r.interests[fd] = interest
	ev := &unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

// Deregister removes fd from the epoll set. Safe to call after the fd has
// already been closed (EBADF is not an error to the caller's concern —
// the fd is gone from the kernel's epoll set the moment it's closed).
func (r *Reactor) Deregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.interests, fd)
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.EBADF || err == unix.ENOENT {
		return nil
	}
	return err
}

// Wait blocks until at least one registered fd is ready or Cancel is
// called, then returns the readable/writable sets. Read readiness is
// level-triggered: a fd with unread bytes remains ready across calls
// until fully drained.
func (r *Reactor) Wait() (Readiness, error) {
	for {
		n, err := unix.EpollWait(r.epfd, r.events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return Readiness{}, err
		}

		var ready Readiness
		for i := 0; i < n; i++ {
			fd := int(r.events[i].Fd)
			if fd == r.pipe.r {
				r.pipe.drain()
				continue
			}
			flags := r.events[i].Events
			if flags&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				ready.Readable = append(ready.Readable, fd)
			}
			if flags&unix.EPOLLOUT != 0 {
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

// Close releases the epoll fd and the self-pipe. The caller must have
// already closed and deregistered every client/listener fd.
func (r *Reactor) Close() error {
	r.pipe.close()
	return unix.Close(r.epfd)
}
