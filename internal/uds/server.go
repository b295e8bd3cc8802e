package uds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/msageha/conductor/internal/logging"
)

// HandlerFunc answers one command. The context ends when the server stops
// or the connection deadline passes.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

type Server struct {
	socketPath  string
	logger      *logging.Logger
	connTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	listener net.Listener
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewServer(socketPath string, logger *logging.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:  socketPath,
		logger:      logger.Named("uds"),
		connTimeout: 30 * time.Minute,
		handlers:    make(map[string]HandlerFunc),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetConnTimeout bounds one request, including the handler. Runs can be
// long, so the default is generous.
func (s *Server) SetConnTimeout(d time.Duration) {
	s.connTimeout = d
}

func (s *Server) Handle(command string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = h
}

func (s *Server) Path() string {
	return s.socketPath
}

// Start listens on the socket path, replacing a stale socket file. The
// caller must hold the workspace lock so a live socket is never removed.
func (s *Server) Start() error {
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Infof("listening on %s", s.socketPath)
	return nil
}

// Stop cancels in-flight handlers, waits for them and removes the socket.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warnf("accept: %v", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(s.connTimeout)
	_ = conn.SetDeadline(deadline)

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.logger.Warnf("read request: %v", err)
		return
	}

	ctx, cancel := context.WithDeadline(s.ctx, deadline)
	defer cancel()
	resp := s.dispatch(ctx, &req)

	if err := WriteFrame(conn, resp); err != nil {
		s.logger.Warnf("command=%s write response: %v", req.Command, err)
	}
}

func (s *Server) dispatch(ctx context.Context, req *Request) (resp *Response) {
	if req.ProtocolVersion != ProtocolVersion {
		return errorResponse(Errorf(CodeProtocolMismatch,
			"protocol version mismatch: got %d, expected %d", req.ProtocolVersion, ProtocolVersion))
	}

	s.mu.RLock()
	h, ok := s.handlers[req.Command]
	s.mu.RUnlock()
	if !ok {
		return errorResponse(Errorf(CodeUnknownCommand, "unknown command: %q", req.Command))
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("command=%s panic: %v\n%s", req.Command, r, debug.Stack())
			resp = errorResponse(Errorf(CodeInternal, "handler panicked: %v", r))
		}
	}()

	data, err := h(ctx, req.Params)
	if err != nil {
		s.logger.Debugf("command=%s failed: %v", req.Command, err)
		return errorResponse(err)
	}
	return successResponse(data)
}
