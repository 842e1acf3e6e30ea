package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// config holds the parsed command-line configuration, following the shape
// of the teacher's pkg/cli.Config (flags override environment variables,
// which override defaults).
type config struct {
	Mode       string // "sender", "receiver", or "loopback"
	Tempo      float64
	MIDIFile   string // optional SMF to seed the sender's tempo from
	LogLevel   string
	Timeout    time.Duration
	SendClockWhileStopped bool
}

func parseArgs(args []string) (*config, error) {
	fs := flag.NewFlagSet("syncengine", flag.ContinueOnError)

	cfg := &config{}
	fs.StringVar(&cfg.Mode, "mode", "loopback", "operating mode: sender, receiver, or loopback")
	fs.Float64Var(&cfg.Tempo, "tempo", 120, "initial tempo, in beats per minute")
	fs.StringVar(&cfg.MIDIFile, "midi-file", "", "optional Standard MIDI File to seed the sender's tempo map from")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, or error")
	var timeoutSec int
	fs.IntVar(&timeoutSec, "timeout", 0, "exit after this many seconds (0 means run until interrupted)")
	fs.BoolVar(&cfg.SendClockWhileStopped, "send-clock-while-stopped", false, "keep emitting Clock messages while the sender is stopped")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if env := os.Getenv("SYNCENGINE_LOG_LEVEL"); env != "" && cfg.LogLevel == "info" {
		cfg.LogLevel = strings.ToLower(env)
	}
	if env := os.Getenv("SYNCENGINE_TIMEOUT"); env != "" && timeoutSec == 0 {
		if v, err := strconv.Atoi(env); err == nil && v > 0 {
			timeoutSec = v
		}
	}

	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	cfg.Timeout = time.Duration(timeoutSec) * time.Second

	switch cfg.Mode {
	case "sender", "receiver", "loopback":
	default:
		return nil, fmt.Errorf("invalid mode: %s (must be sender, receiver, or loopback)", cfg.Mode)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Tempo <= 0 {
		return nil, fmt.Errorf("tempo must be positive, got %v", cfg.Tempo)
	}

	return cfg, nil
}
