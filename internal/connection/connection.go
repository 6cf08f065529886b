// Package connection implements per-socket client state: the 64-bit
// subscription bitset, the outbound byte write queue with optional
// backpressure bound, and the non-blocking read/write primitives the
// reactor drives.
//
// A Conn owns its file descriptor exclusively for its entire lifetime;
// no other component performs socket syscalls on it. All Conn state is
// confined to the reactor goroutine, so no per-connection locking is
// needed.
package connection

import (
	"golang.org/x/sys/unix"
)

// WriteStatus is the result of a single TryWrite call.
type WriteStatus int

const (
	// WriteProgressed means the write neither failed nor would block;
	// the queue head advanced by however many bytes the kernel send
	// buffer accepted (none when the queue was already empty).
	WriteProgressed WriteStatus = iota
	// WriteWouldBlock means the socket send buffer is full right now.
	// This is not an error; the caller waits for the next write-ready
	// notification.
	WriteWouldBlock
	// WriteFailed means the write returned a fatal error (broken pipe,
	// reset connection, etc). The caller must drop this connection.
	WriteFailed
)

// ReadStatus is the result of a single TryReadHeaderByte call.
type ReadStatus int

const (
	// ReadGot means exactly one byte was read; it is returned alongside
	// the status.
	ReadGot ReadStatus = iota
	// ReadWouldBlock means no data is available right now.
	ReadWouldBlock
	// ReadClosed means the peer performed an orderly shutdown (read
	// returned 0 bytes).
	ReadClosed
	// ReadFailed means the read returned a fatal error.
	ReadFailed
)

// Conn is one accepted client connection: its subscription bitset and
// its outbound write queue. Only the reactor goroutine ever touches a
// Conn; producers hand samples to it through the engine's pending queue
// rather than reaching a Conn directly.
type Conn struct {
	fd  int
	buf []byte // FIFO of bytes: concatenation of whole frames, or the tail of one mid-write

	subscriptions uint64 // bit i set ⇒ subscribed to DatasetId i

	maxQueueBytes int // 0 = unbounded
	dropped       int64
}

// New wraps an already-accepted, already-non-blocking file descriptor.
// maxQueueBytes bounds the write queue; 0 means unbounded.
func New(fd int, maxQueueBytes int) *Conn {
	return &Conn{fd: fd, maxQueueBytes: maxQueueBytes}
}

// FD returns the underlying file descriptor, for reactor registration.
func (c *Conn) FD() int { return c.fd }

// PushOutbound appends frame (or a contiguous burst of frames, e.g. a
// catalog) to the write queue. It reports whether the append transitioned
// the queue from empty to non-empty, so the caller knows to arm write
// interest; queued reports whether the bytes were actually kept (false
// means they were dropped wholesale at this frame boundary because the
// configured byte cap would have been exceeded).
//
// Called from the reactor goroutine only; this method performs no
// syscalls and does not block.
func (c *Conn) PushOutbound(frame []byte) (queued bool, becameNonEmpty bool) {
	wasEmpty := len(c.buf) == 0

	if c.maxQueueBytes > 0 && len(c.buf)+len(frame) > c.maxQueueBytes {
		c.dropped++
		return false, false
	}

	c.buf = append(c.buf, frame...)
	return true, wasEmpty && len(c.buf) > 0
}

// HasPendingWrite reports whether the write queue is non-empty.
func (c *Conn) HasPendingWrite() bool {
	return len(c.buf) > 0
}

// QueuedBytes returns the current pending write-queue size in bytes.
func (c *Conn) QueuedBytes() int {
	return len(c.buf)
}

// DroppedFrames returns the number of PushOutbound calls refused since
// construction due to the byte cap.
func (c *Conn) DroppedFrames() int64 {
	return c.dropped
}

// TryWrite performs one best-effort non-blocking write of the queue's
// contiguous front region, advancing the queue head by the number of
// bytes the kernel accepted.
func (c *Conn) TryWrite() WriteStatus {
	if len(c.buf) == 0 {
		return WriteProgressed
	}

	n, err := unix.Write(c.fd, c.buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return WriteWouldBlock
		}
		return WriteFailed
	}
	if n > 0 {
		c.buf = c.buf[n:]
	}
	return WriteProgressed
}

// TryReadHeaderByte attempts a single non-blocking 1-byte read, used to
// fetch the header octet of the next client→host control frame.
func (c *Conn) TryReadHeaderByte() (ReadStatus, byte) {
	var b [1]byte
	n, err := unix.Read(c.fd, b[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return ReadWouldBlock, 0
		}
		return ReadFailed, 0
	}
	if n == 0 {
		return ReadClosed, 0
	}
	return ReadGot, b[0]
}

// SetSubscribed flips the subscription bit for id. Idempotent: setting an
// already-set (or already-clear) bit to the same value is a no-op.
func (c *Conn) SetSubscribed(id uint8, on bool) {
	mask := uint64(1) << (id & 63)
	if on {
		c.subscriptions |= mask
	} else {
		c.subscriptions &^= mask
	}
}

// IsSubscribed reports whether this connection wishes to receive data for
// id.
func (c *Conn) IsSubscribed(id uint8) bool {
	return c.subscriptions&(uint64(1)<<(id&63)) != 0
}

// Close releases the underlying file descriptor. Safe to call once; the
// reactor calls this exactly once per connection, on peer close, I/O
// error, or engine teardown.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}
