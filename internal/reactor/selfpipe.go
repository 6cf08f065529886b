package reactor

import "golang.org/x/sys/unix"

// selfPipe is a pair of non-blocking file descriptors used solely to
// interrupt a blocked readiness wait from another goroutine. Its read end
// is always part of the reactor's interest set; a Cancel call writes one
// byte to the write end, and the next (or in-progress) Wait drains and
// discards it. Multiple Cancel calls before the next Wait coalesce into
// at most one wakeup's worth of buffered bytes, which is all a cancel
// needs to guarantee.
type selfPipe struct {
	r, w int
}

func newSelfPipe() (*selfPipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	return &selfPipe{r: fds[0], w: fds[1]}, nil
}

// cancel wakes up a blocked Wait. Safe to call from any goroutine,
// including concurrently with itself; EAGAIN (pipe buffer already full of
// undrained bytes) is not an error here, since one undrained byte is
// enough to guarantee the next Wait returns.
func (p *selfPipe) cancel() {
	_, err := unix.Write(p.w, []byte{1})
	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		// Nothing useful to do with a broken self-pipe other than drop
		// the wakeup; the reactor is being torn down in that case.
		_ = err
	}
}

// drain empties the pipe so the next unrelated readiness event doesn't
// see a stale EPOLLIN/POLLIN on the pipe's read end.
func (p *selfPipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *selfPipe) close() {
	unix.Close(p.r)
	unix.Close(p.w)
}
