// Package server implements the TCP front end: an accept loop plus one
// goroutine per connection, each running request lines through the
// command dispatcher and writing back timestamp-framed responses.
package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/kvstore/pkg/command"
	"github.com/cuemby/kvstore/pkg/log"
	"github.com/cuemby/kvstore/pkg/manager"
	"github.com/cuemby/kvstore/pkg/metrics"
)

// DefaultReadTimeout is the idle-read timeout applied to every
// connection when Config.ReadTimeout is zero.
const DefaultReadTimeout = 30 * time.Second

// Config controls how Server binds and times out connections.
type Config struct {
	Addr        string
	ReadTimeout time.Duration
}

// Server accepts connections on Addr and serves them against a command
// Dispatcher until Stop is called.
type Server struct {
	cfg    Config
	mgr    *manager.Manager
	disp   *command.Dispatcher
	listen net.Listener

	running int32 // atomic

	wg sync.WaitGroup
}

// New builds a Server for mgr. Call ListenAndServe to start accepting.
func New(cfg Config, mgr *manager.Manager) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Server{
		cfg:  cfg,
		mgr:  mgr,
		disp: command.New(mgr),
	}
}

// ListenAndServe binds Addr and runs the accept loop until Stop is
// called or the listener fails. It blocks until every in-flight
// connection has finished its current command and the listener has
// closed.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds Addr without starting the accept loop, so a caller (the
// CLI, or a test) can discover the bound address — useful when Addr
// asks for an ephemeral port — before handing off to Serve.
func (s *Server) Listen() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
	}
	s.listen = lis
	atomic.StoreInt32(&s.running, 1)
	metrics.UpdateComponent("server", true, "")
	log.WithComponent("server").Info().Str("addr", lis.Addr().String()).Msg("listening")
	return nil
}

// Serve runs the accept loop against an already-bound listener until
// Stop is called. It blocks until every in-flight connection has
// finished its current command and the listener has closed.
func (s *Server) Serve() error {
	lis := s.listen
	for {
		conn, err := lis.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.running) == 0 {
				break
			}
			log.WithComponent("server").Warn().Err(err).Msg("accept failed")
			continue
		}

		metrics.ConnectionsTotal.Inc()
		metrics.ConnectionsActive.Inc()
		s.wg.Add(1)
		go s.handleConn(conn)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the address the server is actually bound to, useful when
// Config.Addr asked for an ephemeral port. It is only valid once Listen
// (or ListenAndServe) has bound the listener.
func (s *Server) Addr() net.Addr {
	if s.listen == nil {
		return nil
	}
	return s.listen.Addr()
}

// Stop requests graceful shutdown: the accept loop exits, in-flight
// connections are given the chance to finish their current command, and
// a final snapshot is saved before the WAL is closed.
func (s *Server) Stop() {
	atomic.StoreInt32(&s.running, 0)
	metrics.UpdateComponent("server", false, "shutting down")
	if s.listen != nil {
		s.listen.Close()
	}
	s.wg.Wait()

	// Close already saves a final snapshot and fsyncs the WAL.
	if err := s.mgr.Close(); err != nil {
		log.WithComponent("server").Warn().Err(err).Msg("manager close on shutdown failed")
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer metrics.ConnectionsActive.Dec()
	defer conn.Close()

	// connID correlates this connection's log lines independent of its
	// remote address, which a client's own connection pool may reuse
	// across distinct sessions.
	connID := uuid.NewString()
	logger := log.WithConn(connID)
	logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("connection opened")

	sess := &command.Session{}
	reader := bufio.NewReader(conn)

	for atomic.LoadInt32(&s.running) != 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if line == "" {
				break
			}
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			continue
		}

		timer := metrics.NewTimer()
		response := s.disp.Execute(sess, trimmed)
		verb := strings.ToLower(strings.Fields(trimmed)[0])
		timer.ObserveDurationVec(metrics.CommandDuration, verb)
		metrics.CommandsTotal.WithLabelValues(verb, outcomeOf(response)).Inc()

		framed := fmt.Sprintf("[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), response)
		if _, err := conn.Write([]byte(framed)); err != nil {
			break
		}
	}

	logger.Info().Msg("connection closed")
}

func outcomeOf(response string) string {
	if strings.HasPrefix(response, "ERROR:") {
		return "error"
	}
	return "ok"
}
