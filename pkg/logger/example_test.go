package logger_test

import (
	"fmt"
	"os"

	"github.com/oushaoming/http2rtsp/pkg/logger"
)

// Example showing basic logger usage
func ExampleLogger_basic() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatText

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.Info("gateway started", "listen_addr", ":8090")
	log.Warn("upstream redirected", "location", "rtsp://mirror:554/a")
	log.Error("upstream unreachable", "error", "connection timeout")
}

// Example showing debug category usage
func ExampleLogger_categories() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelDebug
	cfg.EnableCategory(logger.DebugRelay)
	cfg.EnableCategory(logger.DebugSession)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.DebugRelayFrame(0, 12345, 90000, 96, 1200)
	log.DebugSession("state transition", "from", "SETUP_SENT", "to", "PLAY_SENT")
}

// Example showing command-line flags integration
func ExampleFlags() {
	// In main.go:
	// fs := flag.NewFlagSet("http2rtsp", flag.ExitOnError)
	// logFlags := logger.RegisterFlags(fs)
	// fs.Parse(os.Args[1:])
	//
	// logConfig, _ := logFlags.ToConfig()
	// log, _ := logger.New(logConfig)
	// defer log.Close()

	fmt.Println("See cmd/http2rtsp/main.go for complete example")
}

// Example showing JSON format output
func ExampleLogger_json() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = "gateway.json"

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("gateway.json")

	log.Info("client connected",
		"remote_addr", "192.168.1.5:51422",
		"target", "rtsp://camera.local/live")
}

// Example showing conditional debug logging
func ExampleLogger_conditional() {
	cfg := logger.NewConfig()
	cfg.EnableCategory(logger.DebugCodec)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	// Category methods check enablement internally; zero cost if disabled.
	log.DebugCodec("wrote request", "method", "DESCRIBE", "cseq", 2)
	log.DebugRelay("frame dropped", "channel", 1)
}
