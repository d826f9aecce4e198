package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"marketplace/internal/util"

	"go.uber.org/zap"
)

const frameDelim = '\n'

// TCPClient opens a fresh connection for every request and closes it after the reply
type TCPClient struct {
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration
	dialer         net.Dialer
}

// NewTCPClient creates a new TCP client
func NewTCPClient(sendTimeout, receiveTimeout time.Duration) *TCPClient {
	return &TCPClient{
		SendTimeout:    sendTimeout,
		ReceiveTimeout: receiveTimeout,
	}
}

// Address strips the tcp:// scheme from an endpoint
func Address(endpoint string) string {
	return strings.TrimPrefix(endpoint, "tcp://")
}

func (c *TCPClient) Request(ctx context.Context, endpoint, msg string) (string, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", Address(endpoint))
	if err != nil {
		if ctx.Err() != nil {
			return "", classify(ctx, err)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrUnreachable, endpoint, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.SetWriteDeadline(deadline(ctx, c.SendTimeout)); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte(msg + string(frameDelim))); err != nil {
		return "", fmt.Errorf("send to %s: %w", endpoint, classify(ctx, err))
	}

	if err := conn.SetReadDeadline(deadline(ctx, c.ReceiveTimeout)); err != nil {
		return "", err
	}
	reply, err := bufio.NewReader(conn).ReadString(frameDelim)
	if err != nil {
		return "", fmt.Errorf("receive from %s: %w", endpoint, classify(ctx, err))
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// deadline picks the earlier of the context deadline and now+timeout
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return err
}

// Server accepts connections and answers each framed request through a Handler.
// Every connection is served on its own goroutine.
type Server struct {
	listener net.Listener
	handler  Handler
	logger   *zap.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen creates a new server bound to endpoint
func Listen(endpoint string, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", Address(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}
	return &Server{
		listener: ln,
		handler:  handler,
		logger:   util.GetLogger().Named("transport"),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the accept loop until ctx is cancelled or Close is called
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString(frameDelim)
		if err != nil {
			return
		}
		request := strings.TrimRight(line, "\r\n")
		if request == "" {
			continue
		}

		reply, ok := s.handler.Handle(ctx, request)
		if !ok {
			// the peer times out on its own
			continue
		}
		if _, err := conn.Write([]byte(reply + string(frameDelim))); err != nil {
			s.logger.Debug("Failed to write reply",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(err))
			return
		}
	}
}

// Close stops accepting, closes open connections and waits for their goroutines
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.listener.Close()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
