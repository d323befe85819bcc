package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	addr       string
	profile    string
	tick       time.Duration
	endScore   int
	scorePause time.Duration
	clientDir  string
	logLevel   string
}

// parseOptions reads flags, falling back to the environment for anything not
// given on the command line.
func parseOptions(args []string) (options, error) {
	var o options
	tick, err := GetEnvDuration("PONG_TICK", 0)
	if err != nil {
		return o, err
	}
	endScore, err := GetEnvInt("PONG_END_SCORE", 0)
	if err != nil {
		return o, err
	}
	pause, err := GetEnvDuration("PONG_SCORE_PAUSE", -1)
	if err != nil {
		return o, err
	}

	fs := flag.NewFlagSet("pong", flag.ContinueOnError)
	fs.StringVar(&o.addr, "addr", GetEnv("PONG_ADDR", ":8000"), "HTTP listen address")
	fs.StringVar(&o.profile, "profile", GetEnv("PONG_PROFILE", "classic"), fmt.Sprintf("arena profile %v", ProfileNames()))
	fs.DurationVar(&o.tick, "tick", tick, "tick interval (0 keeps the profile's)")
	fs.IntVar(&o.endScore, "end-score", endScore, "points needed to win (0 keeps the profile's)")
	fs.DurationVar(&o.scorePause, "score-pause", pause, "pause after a point (negative keeps the profile's)")
	fs.StringVar(&o.clientDir, "client", GetEnv("PONG_CLIENT_DIR", ""), "directory of static client files to serve at /")
	fs.StringVar(&o.logLevel, "log-level", GetEnv("LOG_LEVEL", "info"), "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// buildProfile resolves the named profile and applies overrides
func buildProfile(o options) (Profile, error) {
	p, err := ProfileByName(o.profile)
	if err != nil {
		return p, err
	}
	if o.tick > 0 {
		p.TickInterval = o.tick
	}
	if o.endScore > 0 {
		p.EndScore = o.endScore
	}
	if o.scorePause >= 0 {
		p.ScorePause = o.scorePause
	}
	return p, p.Validate()
}

func main() {
	o, err := parseOptions(os.Args[1:])
	if err != nil {
		log.Fatal("bad configuration", "err", err)
	}
	level, err := log.ParseLevel(o.logLevel)
	if err != nil {
		log.Fatal("bad log level", "level", o.logLevel, "err", err)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	profile, err := buildProfile(o)
	if err != nil {
		log.Fatal("bad profile", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := NewStats()
	hub := NewHub(profile, stats)
	go hub.Run(ctx)

	server := &http.Server{Addr: o.addr, Handler: SetupRoutes(hub, stats, o.clientDir)}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("server starting", "addr", o.addr, "profile", profile.Name,
			"tick", profile.TickInterval, "end_score", profile.EndScore)
		if o.clientDir != "" {
			log.Info("serving client files", "dir", o.clientDir)
		}
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", "err", err)
		}
	}()

	<-stop
	log.Info("shutting down")
	hub.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	cancel()
	stats.Stop()
}
