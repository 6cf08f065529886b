// Package livegrapher implements a real-time data-streaming host: a
// single TCP port that a control program publishes named float time
// series to, and that remote clients subscribe to by name-assigned id.
//
// The engine runs one internal reactor goroutine that owns every socket
// exclusively — the listener and every accepted client — and multiplexes
// them with epoll (or poll, on non-Linux unix). AddData/AddDataAt are the
// only methods meant to be called from other goroutines; they hand off
// through a small mutex-guarded queue and a self-pipe wakeup rather than
// touching sockets directly.
package livegrapher

import (
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/frc3512/livegrapher-host/internal/connection"
	"github.com/frc3512/livegrapher-host/internal/limits"
	"github.com/frc3512/livegrapher-host/internal/metrics"
	"github.com/frc3512/livegrapher-host/internal/protocol"
	"github.com/frc3512/livegrapher-host/internal/reactor"
	"github.com/frc3512/livegrapher-host/internal/registry"
)

// ignoreSigpipeOnce suppresses SIGPIPE process-wide, the way the original
// host calls signal(SIGPIPE, SIG_IGN) once at startup. Go already turns a
// write to a broken non-stdout/stderr socket into an EPIPE error rather
// than delivering the signal, but engines on distinct ports share one
// process, so this is done once regardless of how many are constructed.
var ignoreSigpipeOnce sync.Once

func ignoreSigpipe() {
	ignoreSigpipeOnce.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}

// slowClientDropThreshold is the number of dropped frames a client's
// queue will absorb before the engine gives up on it and disconnects it
// outright, rather than silently dropping samples forever.
const slowClientDropThreshold = 64

type pendingSample struct {
	name   string
	timeMs uint64
	value  float32
}

// Engine is a running LiveGrapher host. Construct with New and release
// resources with Shutdown.
type Engine struct {
	opts Options
	mask byte

	listenFD int

	reactor *reactor.Reactor
	limiter *limits.AcceptLimiter
	reg     *registry.Registry
	metrics *metrics.Metrics

	clients map[int]*connection.Conn

	pendingMu sync.Mutex
	pending   []pendingSample

	epochMu    sync.Mutex
	epochSet   bool
	epochStart int64
	lastTimeMs uint64

	registryFullWarned bool // reactor goroutine only

	done     chan struct{}
	wg       sync.WaitGroup
	closeOne sync.Once
}

// New starts a LiveGrapher host listening on port. The returned Engine is
// immediately usable: callers can start calling AddData/AddDataAt before
// any client has connected.
func New(port uint16, opts Options) (*Engine, error) {
	ignoreSigpipe()

	fd, err := listen(opts.BindAddress, port, opts.ListenBacklog)
	if err != nil {
		return nil, err
	}

	r, err := reactor.New()
	if err != nil {
		unixClose(fd)
		return nil, wrapError("New", CodeStartup, err)
	}

	if err := r.Register(fd, reactor.InterestRead); err != nil {
		r.Close()
		unixClose(fd)
		return nil, wrapError("New", CodeStartup, err)
	}

	e := &Engine{
		opts:     opts,
		mask:     opts.idMask(),
		listenFD: fd,
		reactor:  r,
		limiter: limits.NewAcceptLimiter(limits.AcceptLimiterConfig{
			IPBurst:     opts.AcceptIPBurst,
			IPRate:      opts.AcceptIPRate,
			GlobalBurst: opts.AcceptGlobalBurst,
			GlobalRate:  opts.AcceptGlobalRate,
		}),
		reg:     registry.New(),
		metrics: metrics.New(),
		clients: make(map[int]*connection.Conn),
		done:    make(chan struct{}),
	}

	e.wg.Add(1)
	go e.runLoop()

	return e, nil
}

// Metrics returns the engine's Prometheus registry wrapper, for mounting
// an HTTP handler alongside the engine in the host process.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Port returns the TCP port the engine is actually listening on. Useful
// when New was called with port 0 to request an OS-assigned ephemeral
// port, e.g. in tests.
func (e *Engine) Port() (uint16, error) {
	return boundPort(e.listenFD)
}

// AddData publishes value for the named dataset, stamping it with the
// number of milliseconds elapsed since this engine's first published
// sample (so the earliest sample reads x=0 on a client's plot). The
// sequence of timestamps this produces is always non-decreasing: if the
// underlying wall clock ever regresses, the previous value is repeated
// rather than going backwards.
func (e *Engine) AddData(name string, value float32) {
	e.AddDataAt(name, e.nextTimeMs(), value)
}

// nextTimeMs computes the next engine-relative timestamp for AddData. It
// is not used by AddDataAt, whose caller supplies an explicit time_ms.
func (e *Engine) nextTimeMs() uint64 {
	now := time.Now().UnixMilli()

	e.epochMu.Lock()
	defer e.epochMu.Unlock()

	if !e.epochSet {
		e.epochStart = now
		e.epochSet = true
	}

	elapsed := now - e.epochStart
	if elapsed < 0 {
		elapsed = 0
	}
	ms := uint64(elapsed)
	if ms < e.lastTimeMs {
		return e.lastTimeMs
	}
	e.lastTimeMs = ms
	return ms
}

// AddDataAt publishes value for the named dataset with an explicit
// timestamp in milliseconds. Safe to call concurrently from any number of
// goroutines, including before the first client has connected.
func (e *Engine) AddDataAt(name string, timeMs uint64, value float32) {
	e.pendingMu.Lock()
	e.pending = append(e.pending, pendingSample{name: name, timeMs: timeMs, value: value})
	e.pendingMu.Unlock()

	e.reactor.Cancel()
}

// Shutdown stops the reactor loop, closes every client connection and the
// listening socket, and releases all engine resources. Safe to call
// exactly once; subsequent calls are no-ops.
func (e *Engine) Shutdown() {
	e.closeOne.Do(func() {
		close(e.done)
		e.reactor.Cancel()

		waited := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(e.opts.ShutdownTimeout):
			e.opts.Logger.Warn().Msg("reactor goroutine did not exit before shutdown timeout")
		}

		for fd, c := range e.clients {
			e.reactor.Deregister(fd)
			c.Close()
		}
		e.clients = nil

		e.reactor.Close()
		unixClose(e.listenFD)
		e.limiter.Close()
	})
}

func (e *Engine) runLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		default:
		}

		ready, err := e.reactor.Wait()
		if err != nil {
			e.opts.Logger.Error().Err(err).Msg("reactor wait failed, stopping engine")
			return
		}

		e.drainPending()

		for _, fd := range ready.Readable {
			if fd == e.listenFD {
				e.acceptAll()
				continue
			}
			e.handleReadable(fd)
		}

		for _, fd := range ready.Writable {
			e.handleWritable(fd)
		}
	}
}

func (e *Engine) acceptAll() {
	for {
		fd, peer, ok, err := acceptOne(e.listenFD)
		if err != nil {
			e.opts.Logger.Error().Err(err).Msg("listener accept failed")
			return
		}
		if !ok {
			return
		}

		if !e.limiter.Allow(peer) {
			e.metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
			unixClose(fd)
			continue
		}

		if e.opts.TCPNoDelay {
			setTCPNoDelay(fd, true)
		}

		c := connection.New(fd, e.opts.MaxQueueBytesPerClient)
		if err := e.reactor.Register(fd, reactor.InterestRead); err != nil {
			c.Close()
			continue
		}
		e.clients[fd] = c

		e.metrics.ConnectionsTotal.Inc()
		e.metrics.ConnectionsActive.Set(float64(len(e.clients)))
	}
}

func (e *Engine) handleReadable(fd int) {
	c, ok := e.clients[fd]
	if !ok {
		return
	}

	for {
		status, b := c.TryReadHeaderByte()
		switch status {
		case connection.ReadGot:
			e.dispatchClientFrame(fd, c, b)
		case connection.ReadWouldBlock:
			return
		case connection.ReadClosed:
			e.closeClient(fd, nil)
			return
		case connection.ReadFailed:
			e.closeClient(fd, newError("read", CodeConnection, "client socket read failed"))
			return
		}
	}
}

func (e *Engine) dispatchClientFrame(fd int, c *connection.Conn, header byte) {
	packetType, id, err := protocol.DecodeClientHeader(header, e.mask)
	if err != nil {
		e.closeClient(fd, wrapError("dispatch", CodeProtocol, err))
		return
	}

	switch packetType {
	case protocol.Subscribe:
		c.SetSubscribed(id, true)
	case protocol.Unsubscribe:
		c.SetSubscribed(id, false)
	case protocol.ListRequest:
		e.sendCatalog(fd, c)
	}
}

func (e *Engine) sendCatalog(fd int, c *connection.Conn) {
	entries := e.reg.Snapshot()
	var burst []byte
	for i, entry := range entries {
		isLast := i == len(entries)-1
		buf, err := protocol.EncodeCatalogEntry(entry.ID, entry.Name, isLast, e.mask)
		if err != nil {
			e.opts.Logger.Error().Err(err).Str("dataset", entry.Name).Msg("failed to encode catalog entry")
			continue
		}
		burst = append(burst, buf...)
		protocol.ReleaseCatalogScratch(buf)
	}
	if len(burst) > 0 {
		e.pushToClient(fd, c, burst)
	}
	e.metrics.CatalogBurstsSent.Inc()
}

func (e *Engine) handleWritable(fd int) {
	c, ok := e.clients[fd]
	if !ok {
		return
	}

	status := c.TryWrite()
	switch status {
	case connection.WriteFailed:
		e.closeClient(fd, newError("write", CodeConnection, "client socket write failed"))
		return
	case connection.WriteProgressed:
		if !c.HasPendingWrite() {
			e.reactor.SetInterest(fd, reactor.InterestRead)
		}
	case connection.WriteWouldBlock:
		// Keep write interest armed; the reactor will call back in.
	}
}

// closeClient drops a client and erases its state. cause carries the
// taxonomy *Error that ended the connection; nil means an orderly peer
// close, which is not worth a log line.
func (e *Engine) closeClient(fd int, cause error) {
	c, ok := e.clients[fd]
	if !ok {
		return
	}
	if cause != nil {
		e.opts.Logger.Warn().Err(cause).Int("fd", fd).Msg("dropping client")
	}
	e.reactor.Deregister(fd)
	c.Close()
	delete(e.clients, fd)
	e.metrics.ConnectionsActive.Set(float64(len(e.clients)))
}

func (e *Engine) drainPending() {
	e.pendingMu.Lock()
	batch := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	for _, s := range batch {
		id, err := e.reg.LookupOrAssign(s.name)
		if err != nil {
			e.metrics.SamplesDropped.Inc()
			if !e.registryFullWarned {
				e.registryFullWarned = true
				e.opts.Logger.Warn().
					Err(wrapError("publish", CodeRegistryFull, err)).
					Str("dataset", s.name).
					Msg("dataset registry full, dropping samples for unregistered names")
			}
			continue
		}
		e.metrics.DatasetsRegistered.Set(float64(e.reg.Size()))

		frame := protocol.EncodeDataPoint(id, s.timeMs, s.value, e.mask)
		published := false
		for fd, c := range e.clients {
			if !c.IsSubscribed(id) {
				continue
			}
			published = true
			e.pushToClient(fd, c, frame)
		}
		if published {
			e.metrics.SamplesPublished.Inc()
		}
	}
}

// pushToClient appends frame to c's write queue, arms write interest if
// the queue transitioned from empty, and disconnects c outright once it
// has accumulated too many dropped frames to be worth keeping around.
func (e *Engine) pushToClient(fd int, c *connection.Conn, frame []byte) {
	queued, becameNonEmpty := c.PushOutbound(frame)
	if !queued {
		e.metrics.SamplesDropped.Inc()
		if c.DroppedFrames() >= slowClientDropThreshold {
			e.metrics.SlowClientsDisconnected.Inc()
			e.closeClient(fd, newError("push", CodeConnection, "client too slow, write queue persistently full"))
		}
		return
	}
	e.metrics.ClientQueueBytes.Observe(float64(c.QueuedBytes()))
	if becameNonEmpty {
		e.reactor.SetInterest(fd, reactor.InterestRead|reactor.InterestWrite)
	}
}
