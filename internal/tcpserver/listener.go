// Package tcpserver implements the TCP listener and connection manager
// (C5) and the per-connection protocol state machine (C3): accepting
// GT06 terminal connections, decoding their frames, and routing decoded
// events into the session registry and command dispatcher.
package tcpserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gt06gateway/internal/bus"
	"gt06gateway/internal/command"
	"gt06gateway/internal/registry"
)

// Config carries the tunables this package names for the listener and its
// worker pool.
type Config struct {
	ListenPort     int
	BossThreads    int
	WorkerThreads  int
	Backlog        int
	IdleTimeout    time.Duration
	ShutdownDrain  time.Duration
	ShardCount     int
}

func (c Config) withDefaults() Config {
	if c.ListenPort <= 0 {
		c.ListenPort = 5023
	}
	if c.BossThreads <= 0 {
		c.BossThreads = 1
	}
	if c.WorkerThreads <= 0 {
		c.WorkerThreads = runtime.NumCPU()
	}
	if c.Backlog <= 0 {
		c.Backlog = 1024
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 600 * time.Second
	}
	if c.ShutdownDrain <= 0 {
		c.ShutdownDrain = 5 * time.Second
	}
	if c.ShardCount <= 0 {
		c.ShardCount = 8
	}
	return c
}

// Server is the TCP listener and connection manager. It owns every
// accepted Connection and is the sole writer of outbound frames,
// implementing both registry.ConnectionCloser and command.ConnectionWriter
// so the session registry and command dispatcher can reach a specific
// connection without knowing about net.Conn.
type Server struct {
	cfg        Config
	registry   *registry.Registry
	dispatcher *command.Dispatcher
	publisher  bus.Publisher
	archiver   bus.RawFrameArchiver
	shards     *shardRing

	listener net.Listener
	sem      *semaphore.Weighted

	nextHandle uint64

	connMu sync.RWMutex
	conns  map[uint64]*Connection

	cancel context.CancelFunc
}

var _ registry.ConnectionCloser = (*Server)(nil)

// New constructs a Server. dispatcher may be nil (e.g. in tests that
// exercise only the registry path); publisher may be nil (defaults to
// a no-op). archiver may be nil, disabling raw-frame archival.
func New(cfg Config, reg *registry.Registry, dispatcher *command.Dispatcher, publisher bus.Publisher, archiver bus.RawFrameArchiver) *Server {
	if publisher == nil {
		publisher = bus.NoopPublisher{}
	}
	cfg = cfg.withDefaults()
	return &Server{
		cfg:        cfg,
		registry:   reg,
		dispatcher: dispatcher,
		publisher:  publisher,
		archiver:   archiver,
		shards:     newShardRing(cfg.ShardCount),
		sem:        semaphore.NewWeighted(int64(cfg.WorkerThreads)),
		conns:      make(map[uint64]*Connection),
	}
}

// Start binds the listening socket and launches the accept loop(s) and
// the registry's idle sweep. It returns once the listener is bound;
// acceptLoop (run via the returned errgroup) does the accepting.
func (s *Server) Start(ctx context.Context) (*errgroup.Group, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ListenPort))
	if err != nil {
		return nil, fmt.Errorf("tcpserver: listen: %w", err)
	}
	s.listener = ln

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < s.cfg.BossThreads; i++ {
		g.Go(func() error {
			return s.acceptLoop(gctx)
		})
	}
	if s.registry != nil {
		s.registry.Start()
	}
	if s.dispatcher != nil {
		s.dispatcher.Start()
	}

	log.Printf("[tcpserver] listening on :%d (boss_threads=%d worker_threads=%d)",
		s.cfg.ListenPort, s.cfg.BossThreads, s.cfg.WorkerThreads)
	return g, nil
}

// acceptLoop runs on each boss thread. Concurrent Accept calls on the
// same listener are safe: the kernel hands each caller a distinct
// socket, so multiple boss threads only help under connection-churn
// bursts and are otherwise idle waiting in Accept.
func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("tcpserver: accept: %w", err)
			}
		}
		go s.handleAccepted(ctx, conn)
	}
}

func (s *Server) handleAccepted(ctx context.Context, conn net.Conn) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		_ = conn.Close()
		return
	}
	defer s.sem.Release(1)

	handle := atomic.AddUint64(&s.nextHandle, 1)
	c := newConnection(handle, conn, s)

	s.connMu.Lock()
	s.conns[handle] = c
	s.connMu.Unlock()

	c.run()
}

func (s *Server) removeConnection(handle uint64) {
	s.connMu.Lock()
	delete(s.conns, handle)
	s.connMu.Unlock()
}

// Write implements command.ConnectionWriter: hand a pre-encoded frame to
// the connection bound to handle's write queue.
func (s *Server) Write(handle uint64, data []byte) error {
	s.connMu.RLock()
	c, ok := s.conns[handle]
	s.connMu.RUnlock()
	if !ok {
		return ErrConnectionGone
	}
	return c.enqueue(data)
}

// CloseConnection implements registry.ConnectionCloser: force-close the
// connection bound to handle, e.g. after the idle sweep evicts its
// session.
func (s *Server) CloseConnection(handle uint64) {
	s.connMu.RLock()
	c, ok := s.conns[handle]
	s.connMu.RUnlock()
	if !ok {
		return
	}
	c.forceClose()
}

// ShardSnapshot reports the live-connection count per rendezvous shard,
// for the admin health endpoint.
func (s *Server) ShardSnapshot() []int64 {
	return s.shards.snapshot()
}

// ConnectionCount reports the number of currently-accepted sockets
// (including ones still mid-login, unlike registry.Count which only
// counts authenticated sessions).
func (s *Server) ConnectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.conns)
}

// Shutdown stops accepting new connections, then waits up to
// cfg.ShutdownDrain for in-flight connections to finish their current
// frame and drain their write queues before forcing them closed.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.registry != nil {
		s.registry.Stop()
	}
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, s.cfg.ShutdownDrain)
	defer drainCancel()

	done := make(chan struct{})
	go func() {
		for {
			if s.ConnectionCount() == 0 {
				close(done)
				return
			}
			select {
			case <-drainCtx.Done():
				close(done)
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}()
	<-done

	s.connMu.RLock()
	remaining := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		remaining = append(remaining, c)
	}
	s.connMu.RUnlock()
	for _, c := range remaining {
		c.forceClose()
	}

	if drainCtx.Err() != nil {
		return fmt.Errorf("tcpserver: shutdown drain timed out with %d connection(s) remaining", len(remaining))
	}
	return nil
}
