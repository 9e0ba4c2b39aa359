// Package config loads the settings of the memsync tools from the
// environment and from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sarchlab/memsync/remote"
	"github.com/sarchlab/memsync/timing"
)

// Environment variables read by Load.
const (
	EnvPID         = "MEMSYNC_PID"
	EnvFreq        = "MEMSYNC_FREQ"
	EnvSchema      = "MEMSYNC_SCHEMA"
	EnvRecord      = "MEMSYNC_RECORD"
	EnvMonitorPort = "MEMSYNC_MONITOR_PORT"
	EnvLogLevel    = "MEMSYNC_LOG_LEVEL"
	EnvTimeout     = "MEMSYNC_TIMEOUT"
	EnvFaultLimit  = "MEMSYNC_FAULT_LIMIT"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid setting")

// Config holds the settings shared by all commands.
type Config struct {
	// PID is the target process. Zero means none was given.
	PID int

	// Freq is the tick frequency of watch loops.
	Freq timing.Freq

	// Schema is the path of a YAML layout schema. Empty selects the built-in
	// layouts.
	Schema string

	// Record is the path of the SQLite change journal. Empty disables it.
	Record string

	// MonitorPort is the port of the HTTP monitor. Zero disables it.
	MonitorPort int

	LogLevel string

	// Timeout bounds every access to the target process.
	Timeout time.Duration

	// FaultLimit disposes a watched record after that many consecutive
	// faulted ticks. Zero keeps faulted records.
	FaultLimit int
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Freq:     30 * timing.Hz,
		LogLevel: "info",
		Timeout:  remote.DefaultTimeout,
	}
}

// Load reads the given .env files, then the process environment, which takes
// precedence. Missing files are skipped. Without files, ".env" in the working
// directory is tried.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	fileEnv := map[string]string{}
	for _, f := range envFiles {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", f, err)
		}

		for k, v := range values {
			if _, seen := fileEnv[k]; !seen {
				fileEnv[k] = v
			}
		}
	}

	return FromEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := fileEnv[key]

		return v, ok
	})
}

// FromEnv builds the settings from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(key string) (string, bool)) (Config, error) {
	c := Default()

	if v, ok := lookup(EnvPID); ok && v != "" {
		pid, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvPID, v)
		}

		c.PID = pid
	}

	if v, ok := lookup(EnvFreq); ok && v != "" {
		f, err := timing.ParseFreq(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrInvalid, EnvFreq, err)
		}

		c.Freq = f
	}

	if v, ok := lookup(EnvSchema); ok {
		c.Schema = v
	}

	if v, ok := lookup(EnvRecord); ok {
		c.Record = v
	}

	if v, ok := lookup(EnvMonitorPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvMonitorPort, v)
		}

		c.MonitorPort = port
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}

	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrInvalid, EnvTimeout, err)
		}

		c.Timeout = d
	}

	if v, ok := lookup(EnvFaultLimit); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvFaultLimit, v)
		}

		c.FaultLimit = n
	}

	return c, c.Validate()
}

// Validate checks the ranges of all settings.
func (c Config) Validate() error {
	switch {
	case c.PID < 0:
		return fmt.Errorf("%w: pid %d is negative", ErrInvalid, c.PID)
	case c.Freq <= 0 || c.Freq > 1000*timing.Hz:
		return fmt.Errorf("%w: frequency %s is outside (0, 1kHz]", ErrInvalid, c.Freq)
	case c.MonitorPort != 0 && (c.MonitorPort <= 1000 || c.MonitorPort > 65535):
		return fmt.Errorf("%w: monitor port %d is outside 1001-65535", ErrInvalid, c.MonitorPort)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout %s is not positive", ErrInvalid, c.Timeout)
	case c.FaultLimit < 0:
		return fmt.Errorf("%w: fault limit %d is negative", ErrInvalid, c.FaultLimit)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}

	return nil
}
