// Command feedbot connects to a robot server and walks the robot to the food.
//
// Usage: feedbot [addr]
//
// The address defaults to TCP_ADDR (or 127.0.0.1:8080). BOT_MAX_STEPS caps
// the number of commands sent; zero means no cap. MAX_FRAME_BYTES must match
// the server's when it serves worlds with replies over 1 MiB.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/feedbot/internal/botclient"
)

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	addr := getEnv("TCP_ADDR", "127.0.0.1:8080")
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}
	maxSteps, err := strconv.Atoi(getEnv("BOT_MAX_STEPS", "0"))
	if err != nil || maxSteps < 0 {
		log.Fatal().Str("value", os.Getenv("BOT_MAX_STEPS")).Msg("bad BOT_MAX_STEPS")
	}

	maxFrame, err := strconv.ParseUint(getEnv("MAX_FRAME_BYTES", "0"), 10, 64)
	if err != nil {
		log.Fatal().Str("value", os.Getenv("MAX_FRAME_BYTES")).Msg("bad MAX_FRAME_BYTES")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := botclient.Dial(ctx, addr, 10*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer c.Close()
	c.SetMaxFrame(maxFrame)
	log.Info().Str("addr", addr).Msg("connected")

	res, err := botclient.Feed(ctx, c, maxSteps, func(s botclient.Step) {
		log.Debug().
			Int("seq", s.Seq).
			Stringer("dir", s.Dir).
			Stringer("robot", s.Robot).
			Stringer("state", s.State).
			Msg("step")
	})
	if err != nil {
		_ = c.Close()
		log.Fatal().Err(err).Int("steps", res.Steps).Msg("gave up")
	}
	robot, _ := res.Final.Grid.Robot()
	log.Info().Int("steps", res.Steps).Stringer("robot", robot).Msg("found food")
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
