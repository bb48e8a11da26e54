package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/grpc"

	flashbackv1 "github.com/jamesainslie/flashback/pkg/api/flashback/v1"
	"github.com/jamesainslie/flashback/pkg/daemon/broadcaster"
	"github.com/jamesainslie/flashback/pkg/daemon/scanner"
	"github.com/jamesainslie/flashback/pkg/daemon/store"
	"github.com/jamesainslie/flashback/pkg/daemon/watcher"
	"github.com/jamesainslie/flashback/pkg/flashback/filter"
	"github.com/jamesainslie/flashback/pkg/flashback/logging"
	"github.com/jamesainslie/flashback/pkg/flashback/rpc"
)

// Config holds daemon configuration.
type Config struct {
	SocketPath string

	// DBPath is the badger directory. Empty keeps the store in memory.
	DBPath string

	// Convention is the only argument naming the daemon accepts.
	Convention rpc.Convention

	// Home resolves relative roots. Defaults to the user's home directory.
	Home   string
	Roots  []string
	Ignore []string

	// Watch follows scanned roots and invalidates results whose files vanish.
	Watch bool

	// Workers sizes each scan's walk pool. Zero derives it from the CPU count.
	Workers int
}

// Server is the flashbackd gRPC server.
type Server struct {
	cfg         Config
	grpc        *grpc.Server
	listener    net.Listener
	store       *store.Store
	broadcaster *broadcaster.Broadcaster
	watcher     *watcher.Watcher
	service     *Service
	log         *logging.Logger

	stopWatch context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// NewServer opens the store and listens on the socket.
func NewServer(cfg Config) (*Server, error) {
	log := logging.Get("daemon")

	var (
		s   *store.Store
		err error
	)
	if cfg.DBPath == "" {
		s, err = store.OpenInMemory()
	} else {
		if err = os.MkdirAll(cfg.DBPath, 0755); err != nil {
			return nil, err
		}
		s, err = store.Open(cfg.DBPath)
	}
	if err != nil {
		return nil, err
	}

	// Remove stale socket if exists
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		_ = s.Close()
		return nil, err
	}

	// Ensure socket directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0755); err != nil {
		_ = s.Close()
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", cfg.SocketPath)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	ignore, invalid := filter.NewIgnore(cfg.Ignore...)
	for _, p := range invalid {
		log.Warn("skipping invalid ignore pattern", "pattern", p)
	}

	b := broadcaster.New()
	sc := scanner.New(s, scanner.Options{Home: cfg.Home, Roots: cfg.Roots, Ignore: ignore, Workers: cfg.Workers})
	svc := NewService(s, sc, b, cfg.Convention)

	srv := &Server{
		cfg:         cfg,
		grpc:        grpc.NewServer(),
		listener:    listener,
		store:       s,
		broadcaster: b,
		service:     svc,
		log:         log,
		stopWatch:   func() {},
	}

	if cfg.Watch {
		w, err := watcher.New(s, ignore)
		if err != nil {
			log.Warn("file watching disabled", "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			srv.watcher = w
			srv.stopWatch = cancel
			svc.SetWatcher(w)
			go w.Run(ctx, func(projectID, path string, count int) {
				log.Info("results invalidated", "project", projectID, "path", path, "count", count)
			})
		}
	}

	svc.SetShutdownHook(func() {
		log.Info("shutdown requested")
		_ = srv.Close()
	})

	flashbackv1.RegisterBackendServer(srv.grpc, svc)
	return srv, nil
}

// Service returns the backend service.
func (s *Server) Service() *Service {
	return s.service
}

// Serve starts the gRPC server. Blocks until stopped.
func (s *Server) Serve() error {
	err := s.grpc.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Close stops scans and subscriptions, then the server, and releases the
// store and socket. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.service.Close()
		s.broadcaster.Close()
		s.stopWatch()
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
		s.grpc.GracefulStop()
		s.closeErr = errors.Join(s.store.Close(), removeIfExists(s.cfg.SocketPath))
	})
	return s.closeErr
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
