// Package config holds the gateway's process-wide scalar settings. Values
// are resolved once in main and passed down as an immutable value rather
// than read from package globals at call sites.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all scalar settings recognized by the gateway.
type Config struct {
	ListenPort int
	MaxClients int
	BufferKB   int
	Verbose    bool
	Foreground bool
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		ListenPort: 8090,
		MaxClients: 10,
		BufferKB:   32,
		Verbose:    false,
		Foreground: true,
	}
}

// BufferSize returns the relay buffer size in bytes.
func (c Config) BufferSize() int {
	return c.BufferKB * 1024
}

// LoadFile overlays KEY=value pairs from an optional defaults file onto cfg.
// Unknown keys are ignored; a missing file is not an error.
func LoadFile(cfg Config, path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "port":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.ListenPort = n
			}
		case "max_clients":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.MaxClients = n
			}
		case "buffer_kb":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.BufferKB = n
			}
		case "verbose":
			cfg.Verbose = parseBool(value)
		case "foreground":
			cfg.Foreground = parseBool(value)
		}
	}

	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("scan config file: %w", err)
	}

	return cfg, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
