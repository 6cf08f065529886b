package livegrapher

import (
	"net"

	"golang.org/x/sys/unix"
)

// listen creates a non-blocking IPv4 TCP listening socket bound to
// addr:port with the given accept backlog. Built directly on
// golang.org/x/sys/unix rather than net.Listen, since the reactor needs
// to drive accept(2) itself through its own readiness loop instead of
// handing control to a goroutine-per-accept net.Listener.
func listen(addr string, port uint16, backlog int) (int, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return 0, wrapError("listen", CodeStartup, &net.AddrError{Err: "invalid bind address", Addr: addr})
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, wrapError("listen", CodeStartup, &net.AddrError{Err: "only IPv4 bind addresses are supported", Addr: addr})
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, wrapError("listen", CodeStartup, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, wrapError("listen", CodeStartup, err)
	}

	sa := &unix.SockaddrInet4{Port: int(port)}
	copy(sa.Addr[:], ip4)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, wrapError("listen", CodeStartup, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return 0, wrapError("listen", CodeStartup, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, wrapError("listen", CodeStartup, err)
	}

	return fd, nil
}

// acceptOne performs a single non-blocking accept(2) on a listening
// socket, then sets the new connection's fd non-blocking, returning it and
// its peer address. ok is false when the accept would block (no pending
// connection) or failed transiently; err is only non-nil for a fatal
// listener-level failure.
func acceptOne(listenFD int) (fd int, peer string, ok bool, err error) {
	nfd, sa, aerr := unix.Accept(listenFD)
	if aerr != nil {
		if aerr == unix.EAGAIN || aerr == unix.EWOULDBLOCK {
			return 0, "", false, nil
		}
		if aerr == unix.ECONNABORTED || aerr == unix.EINTR {
			return 0, "", false, nil
		}
		return 0, "", false, aerr
	}

	if serr := unix.SetNonblock(nfd, true); serr != nil {
		unix.Close(nfd)
		return 0, "", false, nil
	}

	peer = sockaddrHost(sa)
	return nfd, peer, true, nil
}

func sockaddrHost(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return ip.String()
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return ip.String()
	default:
		return ""
	}
}

func setTCPNoDelay(fd int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

func unixClose(fd int) {
	unix.Close(fd)
}

// boundPort returns the port the kernel actually assigned to fd, useful
// when the caller requested port 0 (an ephemeral port).
func boundPort(fd int) (uint16, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return uint16(a.Port), nil
	case *unix.SockaddrInet6:
		return uint16(a.Port), nil
	default:
		return 0, nil
	}
}
