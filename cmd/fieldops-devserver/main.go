// Command fieldops-devserver runs an in-memory ERP backend for local
// development and demos.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcus/fieldops/internal/attendance"
	"github.com/marcus/fieldops/internal/devserver"
	"github.com/spf13/pflag"
)

func main() {
	addr := pflag.String("addr", ":8080", "Listen address")
	token := pflag.String("token", os.Getenv("FIELDOPS_TOKEN"), "Required bearer token (empty accepts any)")
	tz := pflag.String("timezone", attendance.DefaultTimezone, "Business timezone")
	lateCutoff := pflag.Duration("late-cutoff", devserver.DefaultLateCutoff, "Check-ins after this offset from midnight are Late")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	loc, err := attendance.LoadLocation(*tz)
	if err != nil {
		slog.Error("load timezone", "err", err)
		os.Exit(1)
	}

	srv := devserver.New(devserver.Options{
		Token:      *token,
		Location:   loc,
		LateCutoff: *lateCutoff,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(*addr) }()
	slog.Info("server started", "addr", *addr, "timezone", loc.String())

	select {
	case err := <-errc:
		slog.Error("listen", "err", err)
		os.Exit(1)
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}
