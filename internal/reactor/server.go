// Package reactor implements the single-threaded, readiness-polled server
// loop: bind and listen on one TCP address, then cooperatively dispatch
// accepts and per-connection request/response cycles from one epoll set.
//
// There is exactly one suspension point — the epoll_wait at the top of
// Start's loop. Everything between two waits runs to completion for one
// ready file descriptor; no goroutine is ever spawned per connection,
// matching the source's poll(2)-based design translated to Go's epoll
// syscalls (original_source/src/server.cpp: Server::run).
package reactor

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/rishav/risk-gateway/internal/gateway"
	"github.com/rishav/risk-gateway/internal/metrics"
	"github.com/rishav/risk-gateway/internal/risk"
)

// backLog matches the source's BACK_LOG constant.
const backLog = 20

// maxEvents bounds one epoll_wait batch; it has no bearing on correctness,
// only on how many ready fds are drained per syscall.
const maxEvents = 128

// Server owns the listening socket, the epoll instance, every accepted
// Connection, and the shared risk engine + sequence counter Handle every
// Connection borrows.
type Server struct {
	log        *zap.Logger
	listenerFd int
	epollFd    int
	wakeFd     int
	handle     *gateway.Handle
	conns      map[int]*gateway.Connection
}

// New resolves and binds host:port with SO_REUSEADDR, but does not begin
// accepting connections until Start is called.
func New(host string, port uint16, engine *risk.Engine, log *zap.Logger) (*Server, error) {
	listenerFd, err := bind(host, port)
	if err != nil {
		return nil, fmt.Errorf("reactor: %w", err)
	}

	epollFd, err := unix.EpollCreate1(0)
	if err != nil {
		unix.Close(listenerFd)
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(listenerFd)
		unix.Close(epollFd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}

	return &Server{
		log:        log,
		listenerFd: listenerFd,
		epollFd:    epollFd,
		wakeFd:     wakeFd,
		handle:     gateway.NewHandle(engine),
		conns:      make(map[int]*gateway.Connection),
	}, nil
}

// bind resolves (host, port), opens a non-blocking TCP socket with
// SO_REUSEADDR set, and binds it — without listening (original_source's
// get_listener_fd, minus the immediate ::listen call it performs eagerly).
func bind(host string, port uint16) (int, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, fmt.Errorf("address resolution failed for %s: %w", addr, err)
	}

	domain := unix.AF_INET
	if tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	sa, err := sockaddr(domain, tcpAddr)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", addr, err)
	}
	return fd, nil
}

func sockaddr(domain int, addr *net.TCPAddr) (unix.Sockaddr, error) {
	if domain == unix.AF_INET {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], addr.IP.To4())
		return sa, nil
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return sa, nil
}

// AttachMetrics wires an ops metrics registry into every Connection this
// Server creates from now on (new accepts only; existing connections are
// unaffected, but Server is expected to be wired before Start is called).
func (s *Server) AttachMetrics(reg *metrics.Registry) {
	s.handle.Metrics = reg
}

// Addr returns the address the listener is bound to, useful when Server was
// constructed with port 0 (let the OS choose) — handy in tests.
func (s *Server) Addr() (string, error) {
	sa, err := unix.Getsockname(s.listenerFd)
	if err != nil {
		return "", fmt.Errorf("getsockname: %w", err)
	}
	return describeSockaddr(sa), nil
}

// Start begins listening with the configured backlog, registers the
// listener for EPOLLIN, and runs the cooperative loop until ctx is
// cancelled. It returns nil on a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	if err := unix.Listen(s.listenerFd, backLog); err != nil {
		return fmt.Errorf("reactor: listen: %w", err)
	}
	if err := s.register(s.listenerFd, unix.EPOLLIN); err != nil {
		return fmt.Errorf("reactor: register listener: %w", err)
	}
	if err := s.register(s.wakeFd, unix.EPOLLIN); err != nil {
		return fmt.Errorf("reactor: register wake fd: %w", err)
	}
	s.log.Info("listening", zap.Int("backlog", backLog))

	// The reactor's own suspension point (epoll_wait) has no timeout, so a
	// ctx cancellation needs something to wake it: one small goroutine
	// watches ctx.Done() and pokes an eventfd registered in the same poll
	// set. This is the single exception to "no goroutines" in the whole
	// server — it never touches risk.Engine or trader.Book, only the
	// eventfd, so it does not reintroduce concurrency into the trading
	// data path.
	go func() {
		<-ctx.Done()
		var one [8]byte
		one[7] = 1
		unix.Write(s.wakeFd, one[:])
	}()

	events := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := unix.EpollWait(s.epollFd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case s.wakeFd:
				s.log.Info("shutdown requested")
				return s.shutdown()
			case s.listenerFd:
				s.acceptNew()
			default:
				s.dispatch(fd)
			}
		}
	}
}

func (s *Server) register(fd int, events uint32) error {
	return unix.EpollCtl(s.epollFd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	})
}

func (s *Server) deregister(fd int) {
	_ = unix.EpollCtl(s.epollFd, unix.EPOLL_CTL_DEL, fd, nil)
}

// acceptNew drains every pending connection (no backpressure beyond the OS
// backlog of 20) and registers each for EPOLLIN.
func (s *Server) acceptNew() {
	for {
		fd, sa, err := unix.Accept4(s.listenerFd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			return
		}
		remote := describeSockaddr(sa)
		if err := s.register(fd, unix.EPOLLIN); err != nil {
			s.log.Warn("failed to register connection", zap.Error(err))
			unix.Close(fd)
			continue
		}
		s.conns[fd] = gateway.New(fd, remote, s.handle, s.log)
		s.log.Debug("accepted connection", zap.Int("fd", fd), zap.String("remote", remote))
	}
}

func describeSockaddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}

// dispatch drives exactly one request/response cycle for a ready
// connection, deregistering and dropping it if that cycle closed it.
func (s *Server) dispatch(fd int) {
	conn, ok := s.conns[fd]
	if !ok {
		return
	}
	if outcome := conn.OnReadable(); outcome == gateway.Closed {
		s.deregister(fd)
		delete(s.conns, fd)
	}
}

// shutdown closes every live connection (replaying disconnect cleanup via
// Connection.Close) plus the listener and epoll fd.
func (s *Server) shutdown() error {
	for fd, conn := range s.conns {
		conn.Close()
		s.deregister(fd)
		delete(s.conns, fd)
	}
	unix.Close(s.listenerFd)
	unix.Close(s.wakeFd)
	unix.Close(s.epollFd)
	return nil
}
