package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oushaoming/http2rtsp/pkg/config"
	"github.com/oushaoming/http2rtsp/pkg/gateway"
	"github.com/oushaoming/http2rtsp/pkg/logger"
)

func main() {
	fs := flag.NewFlagSet("http2rtsp", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)

	port := fs.Int("port", 0, "listen port (0 uses the config default)")
	maxClients := fs.Int("max-clients", 0, "max concurrent relay sessions (0 uses the config default)")
	bufferKB := fs.Int("buffer-kb", 0, "relay buffer size in KB (0 uses the config default)")
	connectsPerMin := fs.Float64("connects-per-min", 120, "outbound connect attempts allowed per upstream host per minute")
	confPath := fs.String("config", "http2rtsp.conf", "optional KEY=value defaults file")
	foreground := fs.Bool("T", true, "run in foreground (kept for CLI compatibility; daemonization is not implemented)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "HTTP-to-RTSP gateway: http://host:PORT/rtsp://camera/path\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	cfg, err := config.LoadFile(config.Default(), *confPath)
	if err != nil {
		log.Error("failed to load config file", "path", *confPath, "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.ListenPort = *port
	}
	if *maxClients != 0 {
		cfg.MaxClients = *maxClients
	}
	if *bufferKB != 0 {
		cfg.BufferKB = *bufferKB
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "T" {
			cfg.Foreground = *foreground
		}
	})
	if !cfg.Foreground {
		log.Warn("daemonization is not implemented, running in foreground regardless of -T")
	}

	log.Info("http2rtsp starting",
		"listen_port", cfg.ListenPort,
		"max_clients", cfg.MaxClients,
		"buffer_kb", cfg.BufferKB,
		"log_config", logFlags.String())

	g := gateway.New(gateway.Config{
		ListenAddr:        fmt.Sprintf(":%d", cfg.ListenPort),
		MaxClients:        cfg.MaxClients,
		ConnectsPerMinute: *connectsPerMin,
		BufferSize:        cfg.BufferSize(),
	}, log)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ListenPort))
	if err != nil {
		log.Error("failed to bind listen port", "port", cfg.ListenPort, "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- g.Serve(ln) }()

	log.Info("listening for clients", "url_format", fmt.Sprintf("http://host:%d/rtsp://camera:554/path", cfg.ListenPort))

	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			log.Error("gateway exited unexpectedly", "error", err)
			os.Exit(1)
		}
		return
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Shutdown(stopCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}
