package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{
		"TCP_ADDR", "HTTP_ADDR", "WORLD_HEIGHT", "WORLD_WIDTH", "WORLD_SEED",
		"READ_TIMEOUT", "WRITE_TIMEOUT", "MAX_FRAME_BYTES", "MAX_SESSIONS", "ONE_SHOT", "JOURNAL_DSN",
		"OBSERVER_JWT_SECRET", "CLIENT_ORIGIN", "WATCH_INTERVAL", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.TCPAddr != "127.0.0.1:8080" || c.HTTPAddr != "127.0.0.1:8081" {
		t.Fatalf("addrs = %q %q", c.TCPAddr, c.HTTPAddr)
	}
	if c.WorldHeight != 100 || c.WorldWidth != 100 || c.WorldSeed != nil {
		t.Fatalf("world = %dx%d seed %v", c.WorldHeight, c.WorldWidth, c.WorldSeed)
	}
	if c.WriteTimeout != 10*time.Second || c.ReadTimeout != 0 || c.MaxFrameBytes != 1<<20 {
		t.Fatalf("transport = %+v", c)
	}
	if !c.HTTPEnabled() || c.OneShot || c.MaxSessions != 1 || c.JournalDSN != "" {
		t.Fatalf("flags = %+v", c)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TCP_ADDR", ":9000")
	t.Setenv("HTTP_ADDR", "off")
	t.Setenv("WORLD_HEIGHT", "12")
	t.Setenv("WORLD_WIDTH", "7")
	t.Setenv("WORLD_SEED", "42")
	t.Setenv("READ_TIMEOUT", "30s")
	t.Setenv("ONE_SHOT", "true")
	t.Setenv("WATCH_INTERVAL", "1s")
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.TCPAddr != ":9000" || c.HTTPEnabled() {
		t.Fatalf("addrs = %q %q", c.TCPAddr, c.HTTPAddr)
	}
	if c.WorldHeight != 12 || c.WorldWidth != 7 || c.WorldSeed == nil || *c.WorldSeed != 42 {
		t.Fatalf("world = %+v", c)
	}
	if c.ReadTimeout != 30*time.Second || !c.OneShot || c.WatchInterval != time.Second {
		t.Fatalf("overrides = %+v", c)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := map[string][2]string{
		"bad int":      {"WORLD_HEIGHT", "tall"},
		"tiny world":   {"WORLD_HEIGHT", "1"},
		"bad seed":     {"WORLD_SEED", "-3"},
		"bad duration": {"READ_TIMEOUT", "soon"},
		"bad bool":     {"ONE_SHOT", "maybe"},
		"zero frame":   {"MAX_FRAME_BYTES", "0"},
		"zero watch":   {"WATCH_INTERVAL", "0s"},
		"no sessions":  {"MAX_SESSIONS", "0"},
		"small frames": {"MAX_FRAME_BYTES", "64"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			if kv[0] == "WORLD_HEIGHT" && kv[1] == "1" {
				t.Setenv("WORLD_WIDTH", "1")
			}
			t.Setenv(kv[0], kv[1])
			if _, err := FromEnv(); err == nil {
				t.Fatalf("%s=%s accepted", kv[0], kv[1])
			}
		})
	}
}

func TestFromEnvRejectsWorldLargerThanFrameLimit(t *testing.T) {
	t.Setenv("MAX_FRAME_BYTES", "")
	t.Setenv("WORLD_HEIGHT", "512")
	t.Setenv("WORLD_WIDTH", "512")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("512x512 world accepted with the default 1 MiB frame limit")
	}

	t.Setenv("MAX_FRAME_BYTES", "2097152")
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv with a 2 MiB limit: %v", err)
	}
	if c.MaxFrameBytes != 2<<20 {
		t.Fatalf("MaxFrameBytes = %d", c.MaxFrameBytes)
	}
}
