// Package rsyncd implements the public surface of an rsync daemon: it
// wires the module registry, the handshake state machine, and the
// optional OS-level path jail together behind a small Option-based
// constructor, in the same shape as the teacher's original
// rsyncd.Server (NewServer/Option/WithLogger/WithStderr/Serve) — but
// driving internal/handshake for the actual protocol exchange instead
// of this package's own ad-hoc wire code.
package rsyncd

import (
	"context"
	"io"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/gokrazy/rsync-handshake/internal/charset"
	"github.com/gokrazy/rsync-handshake/internal/handshake"
	"github.com/gokrazy/rsync-handshake/internal/log"
	"github.com/gokrazy/rsync-handshake/internal/modules"
	"github.com/gokrazy/rsync-handshake/internal/restrict"
	"github.com/gokrazy/rsync-handshake/internal/rsyncwire"
)

// Option specifies the server options.
type Option interface {
	applyServer(*Server)
}

type serverOptionFunc func(*Server)

func (f serverOptionFunc) applyServer(s *Server) { f(s) }

// WithLogger specifies the logger to use for the server and the
// handshake it drives.
func WithLogger(logger log.Logger) Option {
	return serverOptionFunc(func(s *Server) { s.logger = logger })
}

func WithStderr(stderr io.Writer) Option {
	return serverOptionFunc(func(s *Server) { s.stderr = stderr })
}

// WithCharset overrides the negotiated character set used to decode
// the client's argument vector (default UTF-8).
func WithCharset(name string) Option {
	return serverOptionFunc(func(s *Server) { s.charsetName = name })
}

// NewServer validates modules, builds the registry and handshake
// handler, and returns a ready-to-Serve Server.
func NewServer(mods []modules.Module, opts ...Option) (*Server, error) {
	registry, err := modules.NewRegistry(mods)
	if err != nil {
		return nil, err
	}

	server := &Server{registry: registry}
	for _, opt := range opts {
		opt.applyServer(server)
	}

	if server.stderr == nil {
		server.stderr = os.Stderr
	}
	if server.logger == nil {
		server.logger = log.New(server.stderr)
	}

	codec, err := charset.New(server.charsetName)
	if err != nil {
		return nil, err
	}

	server.handler = handshake.NewHandler(registry,
		handshake.WithCodec(codec),
		handshake.WithLogger(server.logger),
	)

	return server, nil
}

// Server accepts rsync daemon connections and drives each one through
// the handshake.
type Server struct {
	stderr      io.Writer
	logger      log.Logger
	charsetName string

	registry *modules.Registry
	handler  *handshake.Handler
}

// RestrictToModules applies the OS-level Landlock jail (spec §L.3),
// confining the process to the configured module roots. Best-effort:
// a non-Linux host or unsupported kernel logs and continues rather
// than failing startup.
func (s *Server) RestrictToModules() error {
	var roDirs, rwDirs []string
	for _, name := range s.registry.Names() {
		mod, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		if mod.Writable {
			if err := os.MkdirAll(mod.Path, 0o755); err != nil {
				return err
			}
			rwDirs = append(rwDirs, mod.Path)
		} else {
			roDirs = append(roDirs, mod.Path)
		}
	}
	return restrict.ToModuleRoots(s.logger, roDirs, rwDirs)
}

// HandleDaemonConn drives one connection's handshake to completion and
// returns any handshake error for the caller to log (Serve does so).
// connID correlates this connection's log
// lines with the ones the handshake itself emits; Serve generates one
// per accepted connection, but callers driving HandleDaemonConn
// directly (e.g. tests) may pass "".
func (s *Server) HandleDaemonConn(ctx context.Context, conn io.ReadWriter, remoteAddr net.Addr, connID string) error {
	_ = ctx // cancellation is cooperative: the caller closes conn, surfacing as Io on the next read/write.
	c := rsyncwire.NewConn(conn, conn)
	tc, err := s.handler.Handle(c, remoteAddr, connID)
	if err != nil {
		return err
	}
	switch tc.Status {
	case handshake.StatusOk:
		s.logger.Printf("[%s] [%s] handshake complete: role=%v module=%s", connID, remoteAddr, tc.Role, tc.Module.Name)
	case handshake.StatusExit:
		s.logger.Printf("[%s] [%s] module listing sent", connID, remoteAddr)
	}
	return nil
}

// Serve accepts connections on ln until ctx is done, handling each on
// its own goroutine (spec §5: one logical task per connection).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		remoteAddr := conn.RemoteAddr()
		connID := uuid.New().String()
		s.logger.Printf("[%s] connection from %s", connID, remoteAddr)
		go func() {
			defer conn.Close()
			if err := s.HandleDaemonConn(ctx, conn, remoteAddr, connID); err != nil {
				s.logger.Printf("[%s] [%s] handshake: %v", connID, remoteAddr, err)
			}
		}()
	}
}
