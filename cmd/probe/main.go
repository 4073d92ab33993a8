// Command probe drives one RTSP handshake against a target and reports
// what happened, without requiring a downstream HTTP client. It exists to
// answer the question cmd/http2rtsp/main.go can't surface well during live
// traffic: exactly which step of OPTIONS/DESCRIBE/SETUP/PLAY failed, and
// how many frames and bytes the interleaved stream delivered afterward.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oushaoming/http2rtsp/pkg/logger"
	"github.com/oushaoming/http2rtsp/pkg/relay"
	"github.com/oushaoming/http2rtsp/pkg/rtsp"
	"github.com/oushaoming/http2rtsp/pkg/target"
)

func main() {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)

	duration := fs.Duration("duration", 10*time.Second, "how long to sample the interleaved stream after PLAY succeeds")
	bufferKB := fs.Int("buffer-kb", 32, "relay buffer size in KB")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] rtsp://host[:port]/path\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Drives one OPTIONS/DESCRIBE/SETUP/PLAY handshake and samples the\n")
		fmt.Fprintf(os.Stderr, "interleaved stream, reporting exactly where a failure occurred.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		fs.Usage()
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

	tg, err := target.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid target: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("connecting to %s ...\n", tg.HostPort())
	session, err := rtsp.Open(tg, log)
	if err != nil {
		fmt.Printf("handshake failed: %v\n", err)
		os.Exit(1)
	}
	defer session.Teardown()

	fmt.Println("OPTIONS/DESCRIBE/SETUP/PLAY all succeeded")
	fmt.Printf("session id: %s\n", session.ID)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	fmt.Printf("sampling interleaved stream for up to %s (Ctrl+C to stop early) ...\n", *duration)

	sink, drain := net.Pipe()
	go io.Copy(io.Discard, drain) //nolint:errcheck
	defer sink.Close()

	stats, relayErr := relay.Run(ctx, session.Conn, session.Reader, sink, *bufferKB*1024, log)

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("PROBE RESULTS")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("frames forwarded: %d\n", stats.FramesForwarded)
	fmt.Printf("bytes forwarded:  %d\n", stats.BytesForwarded)
	if relayErr != nil && relayErr != context.DeadlineExceeded && relayErr != context.Canceled {
		fmt.Printf("relay ended with error: %v\n", relayErr)
	}
	fmt.Println(strings.Repeat("=", 60))
}
