// internal/config/config.go
//
// Process configuration for the feedbot server and bot client.
//
// Values come from the environment, optionally seeded from a `.env` file in
// the working directory (a missing file is not an error). Malformed values
// fail Load rather than silently falling back.
//
// Environment variables:
//   TCP_ADDR=127.0.0.1:8080       robot protocol listener
//   HTTP_ADDR=127.0.0.1:8081      observer API listener ("off" disables)
//   WORLD_HEIGHT=100, WORLD_WIDTH=100
//   WORLD_SEED=                   fixed seed for reproducible worlds
//   READ_TIMEOUT=0s, WRITE_TIMEOUT=10s
//   MAX_FRAME_BYTES=1048576       also bounds reply size, so it caps the world
//   MAX_SESSIONS=1                concurrent robot sessions (1 = one at a time)
//   ONE_SHOT=false                stop after the first session ends
//   JOURNAL_DSN=                  SQLite path; empty keeps the journal in memory
//   OBSERVER_JWT_SECRET=          enables bearer auth on the observer API
//   CLIENT_ORIGIN=*               CORS origin for the observer API
//   WATCH_INTERVAL=250ms          websocket push period
//   LOG_LEVEL=info, LOG_FORMAT=json|console

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/robalobadob/feedbot/internal/protocol"
)

// Config is the resolved process configuration.
type Config struct {
	TCPAddr  string
	HTTPAddr string

	WorldHeight int
	WorldWidth  int
	WorldSeed   *uint64

	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxFrameBytes uint64
	MaxSessions   int
	OneShot       bool

	JournalDSN string

	ObserverSecret string
	ClientOrigin   string
	WatchInterval  time.Duration

	LogLevel  string
	LogFormat string
}

// HTTPEnabled reports whether the observer API should be started.
func (c Config) HTTPEnabled() bool {
	return c.HTTPAddr != "" && !strings.EqualFold(c.HTTPAddr, "off")
}

// Load reads `.env` (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv resolves the configuration from the current environment only.
func FromEnv() (Config, error) {
	var (
		c   Config
		err error
		p   = parser{}
	)
	c.TCPAddr = getEnv("TCP_ADDR", "127.0.0.1:8080")
	c.HTTPAddr = getEnv("HTTP_ADDR", "127.0.0.1:8081")
	c.WorldHeight = p.intEnv("WORLD_HEIGHT", 100)
	c.WorldWidth = p.intEnv("WORLD_WIDTH", 100)
	if v := os.Getenv("WORLD_SEED"); v != "" {
		seed, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			p.fail("WORLD_SEED", v, perr)
		} else {
			c.WorldSeed = &seed
		}
	}
	c.ReadTimeout = p.durationEnv("READ_TIMEOUT", 0)
	c.WriteTimeout = p.durationEnv("WRITE_TIMEOUT", 10*time.Second)
	maxFrame := p.intEnv("MAX_FRAME_BYTES", 1<<20)
	c.MaxSessions = p.intEnv("MAX_SESSIONS", 1)
	c.OneShot = p.boolEnv("ONE_SHOT", false)
	c.JournalDSN = os.Getenv("JOURNAL_DSN")
	c.ObserverSecret = os.Getenv("OBSERVER_JWT_SECRET")
	c.ClientOrigin = getEnv("CLIENT_ORIGIN", "*")
	c.WatchInterval = p.durationEnv("WATCH_INTERVAL", 250*time.Millisecond)
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	if p.err != nil {
		return Config{}, p.err
	}
	if maxFrame <= 0 {
		return Config{}, fmt.Errorf("config: MAX_FRAME_BYTES must be positive")
	}
	c.MaxFrameBytes = uint64(maxFrame)
	if c.WorldHeight <= 0 || c.WorldWidth <= 0 || c.WorldHeight*c.WorldWidth < 2 {
		err = fmt.Errorf("config: world %dx%d needs at least two cells", c.WorldHeight, c.WorldWidth)
	} else if n := protocol.ReplySize(c.WorldHeight, c.WorldWidth); n > c.MaxFrameBytes {
		err = fmt.Errorf("config: a %dx%d world encodes to %d-byte replies, over MAX_FRAME_BYTES=%d",
			c.WorldHeight, c.WorldWidth, n, c.MaxFrameBytes)
	} else if c.MaxSessions < 1 {
		err = fmt.Errorf("config: MAX_SESSIONS must be at least 1")
	} else if c.WatchInterval <= 0 {
		err = fmt.Errorf("config: WATCH_INTERVAL must be positive")
	}
	return c, err
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// parser keeps the first conversion error.
type parser struct{ err error }

func (p *parser) fail(k, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %w", k, v, err)
	}
}

func (p *parser) intEnv(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(k, v, err)
		return def
	}
	return n
}

func (p *parser) boolEnv(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(k, v, err)
		return def
	}
	return b
}

func (p *parser) durationEnv(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(k, v, err)
		return def
	}
	return d
}
