package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/wlsplit/internal/model"
)

const (
	// maxMessage bounds a single command; the longest token is five bytes.
	maxMessage  = 64
	readTimeout = 500 * time.Millisecond
)

// Server accepts one command per connection on a Unix socket and applies it
// to its target. Connections are handled one at a time, so commands apply in
// arrival order.
type Server struct {
	path   string
	target Target
	onQuit func()

	ln        net.Listener
	closeOnce sync.Once
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithQuit sets the callback invoked after a quit command is dispatched.
func WithQuit(fn func()) ServerOption {
	return func(s *Server) {
		s.onQuit = fn
	}
}

// Listen binds the socket at path. A stale socket file left by a previous
// process is removed first; a path held by a live server is an error.
func Listen(path string, target Target, opts ...ServerOption) (*Server, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: socket path is empty", model.ErrConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: failed to create socket dir: %w", model.ErrConfig, err)
	}
	if err := removeStale(path); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", model.ErrConfig, path, err)
	}
	s := &Server{path: path, target: target, onQuit: func() {}, ln: ln}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func removeStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: failed to stat socket: %w", model.ErrConfig, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s exists and is not a socket", model.ErrConfig, path)
	}
	conn, err := net.DialTimeout("unix", path, readTimeout)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: another instance is listening on %s", model.ErrConfig, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove stale socket: %w", model.ErrConfig, err)
	}
	log.Debug().Str("path", path).Msg("control: removed stale socket")
	return nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve runs the accept loop until ctx is cancelled or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.Close()
	})
	defer stop()

	log.Info().Str("path", s.path).Msg("control: listening")
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Msg("control: accept failed")
			continue
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	buf, err := io.ReadAll(io.LimitReader(conn, maxMessage+1))
	if err != nil && len(buf) == 0 {
		log.Warn().Err(err).Msg("control: read failed")
		return
	}
	if len(buf) > maxMessage {
		log.Warn().Err(fmt.Errorf("%w: message exceeds %d bytes", model.ErrProtocol, maxMessage)).
			Msg("control: dropped command")
		return
	}
	cmd, err := ParseCommand(string(buf))
	if err != nil {
		log.Warn().Err(err).Msg("control: dropped command")
		return
	}
	applied := Apply(s.target, cmd)
	log.Debug().Stringer("command", cmd).Bool("applied", applied).Msg("control: command")
	if cmd == Quit {
		s.onQuit()
	}
}

// Close stops accepting and removes the socket file. It is safe to call more
// than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ln.Close()
		if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) && err == nil {
			err = rerr
		}
	})
	return err
}
