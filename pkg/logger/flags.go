package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel     string
	LogFormat    string
	LogFile      string
	DebugCodec   bool
	DebugSession bool
	DebugRelay   bool
	DebugGateway bool
	DebugAll     bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	fs.BoolVar(&f.DebugCodec, "debug-codec", false,
		"Enable RTSP request/response line debugging")
	fs.BoolVar(&f.DebugSession, "debug-session", false,
		"Enable RTSP session state-machine debugging")
	fs.BoolVar(&f.DebugRelay, "debug-relay", false,
		"Enable interleaved RTP frame debugging (channel, sequence, timestamp)")
	fs.BoolVar(&f.DebugGateway, "debug-gateway", false,
		"Enable HTTP gateway request debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		cfg.Level = LevelDebug
	} else {
		if f.DebugCodec {
			cfg.EnableCategory(DebugCodec)
			cfg.Level = LevelDebug
		}
		if f.DebugSession {
			cfg.EnableCategory(DebugSession)
			cfg.Level = LevelDebug
		}
		if f.DebugRelay {
			cfg.EnableCategory(DebugRelay)
			cfg.Level = LevelDebug
		}
		if f.DebugGateway {
			cfg.EnableCategory(DebugGateway)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./http2rtsp

  Enable DEBUG level:
    ./http2rtsp --log-level debug

  Log to file:
    ./http2rtsp --log-file http2rtsp.log

  JSON format for structured logging:
    ./http2rtsp --log-format json -o http2rtsp.json

  Debug the interleaved relay only:
    ./http2rtsp --debug-relay

  Debug everything:
    ./http2rtsp --debug-all -o debug.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		if f.DebugCodec {
			debugCategories = append(debugCategories, "codec")
		}
		if f.DebugSession {
			debugCategories = append(debugCategories, "session")
		}
		if f.DebugRelay {
			debugCategories = append(debugCategories, "relay")
		}
		if f.DebugGateway {
			debugCategories = append(debugCategories, "gateway")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
