package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"gt06gateway/internal/api/router"
	"gt06gateway/internal/bus"
	"gt06gateway/internal/command"
	"gt06gateway/internal/config"
	"gt06gateway/internal/registry"
	"gt06gateway/internal/tcpserver"
)

func main() {
	cfg := config.LoadConfig()
	mongoConfig := config.NewMongoConfig()

	log.Printf("Starting gt06gateway with configuration:")
	log.Printf("Host: %s Port: %s", cfg.Host, cfg.Port)
	log.Printf("TCP listen port: %d (boss_threads=%d worker_threads=%d)", cfg.TCPPort, cfg.BossThreads, cfg.WorkerThreads)
	log.Printf("Test Mode: %v", cfg.TestMode)

	var db *mongo.Database
	var err error
	for i := 0; i < 5; i++ {
		db, err = config.ConnectMongoDB(mongoConfig)
		if err == nil {
			break
		}
		log.Printf("Failed to connect to MongoDB (attempt %d/5): %v", i+1, err)
		if i < 4 {
			time.Sleep(2 * time.Second)
			continue
		}
		if !cfg.TestMode {
			log.Fatalf("Failed to connect to MongoDB after 5 attempts")
		}
		log.Printf("Running without MongoDB archival in test mode")
	}

	var publisher bus.Publisher
	var archiver bus.RawFrameArchiver
	if db != nil {
		log.Printf("Connected to MongoDB database: %s", mongoConfig.Database)
		mp := bus.NewMongoPublisher(db)
		publisher = mp
		archiver = mp
	} else {
		publisher = bus.NoopPublisher{}
	}

	var mirror *registry.RedisMirror
	if cfg.RedisActive && cfg.RedisURL != "" {
		mirror, err = registry.NewRedisMirror(cfg.RedisURL, time.Duration(cfg.SessionIdleTimeoutSeconds)*time.Second)
		if err != nil {
			log.Printf("Redis session mirror unavailable, continuing without it: %v", err)
			mirror = nil
		} else {
			defer mirror.Close()
		}
	}

	sessionIdleTimeout := time.Duration(cfg.SessionIdleTimeoutSeconds) * time.Second

	var srv *tcpserver.Server
	reg := registry.New(registry.Config{
		MaxSessions: cfg.MaxSessions,
		IdleTimeout: sessionIdleTimeout,
		SweepPeriod: sessionIdleTimeout / 6,
	}, closerFunc(func(handle uint64) {
		if srv != nil {
			srv.CloseConnection(handle)
		}
	}), publisher, mirror)

	dispatcher := command.New(reg, writerFunc(func(handle uint64, data []byte) error {
		if srv == nil {
			return fmt.Errorf("tcp server not started")
		}
		return srv.Write(handle, data)
	}), publisher)

	srv = tcpserver.New(tcpserver.Config{
		ListenPort:    cfg.TCPPort,
		BossThreads:   cfg.BossThreads,
		WorkerThreads: cfg.WorkerThreads,
		Backlog:       cfg.Backlog,
		IdleTimeout:   time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
	}, reg, dispatcher, publisher, archiver)

	ctx, cancelServe := context.WithCancel(context.Background())
	group, err := srv.Start(ctx)
	if err != nil {
		log.Printf("Failed to bind TCP listen port %d: %v", cfg.TCPPort, err)
		os.Exit(2)
	}

	r := router.New(reg, dispatcher, srv, cfg.JWTSecret)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler: r,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Admin HTTP server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Admin HTTP server failed to start: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Admin HTTP server shutdown error: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("TCP server shutdown error: %v", err)
	}
	cancelServe()
	if err := group.Wait(); err != nil {
		log.Printf("TCP accept loop exited with: %v", err)
	}

	log.Println("Shutdown complete")
	os.Exit(0)
}

type closerFunc func(handle uint64)

func (f closerFunc) CloseConnection(handle uint64) { f(handle) }

type writerFunc func(handle uint64, data []byte) error

func (f writerFunc) Write(handle uint64, data []byte) error { return f(handle, data) }
