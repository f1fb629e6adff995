package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MARistheone/Bother-Bot/internal/engine"
	"github.com/MARistheone/Bother-Bot/internal/server"
	"github.com/MARistheone/Bother-Bot/internal/storage/sqlite"
	"github.com/MARistheone/Bother-Bot/internal/sweep"
	"github.com/MARistheone/Bother-Bot/internal/util"
)

func main() {
	addrFlag := flag.String("addr", util.EnvOrDefault("BOTHER_ADDR", ":8080"), "HTTP listen address")
	dbFlag := flag.String("db", util.EnvOrDefault("BOTHER_DB_PATH", "data/bother.db"), "Path to sqlite database file")
	tzFlag := flag.String("tz", util.EnvOrDefault("BOTHER_TZ", "America/New_York"), "Timezone for daily sweeps")
	overdueFlag := flag.Duration("overdue-every", util.EnvDurationOrDefault("BOTHER_OVERDUE_EVERY", time.Hour), "Cadence of the overdue sweep")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	loc, err := time.LoadLocation(*tzFlag)
	if err != nil {
		logger.Error("unknown timezone", slog.String("tz", *tzFlag), slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := sqlite.Open(*dbFlag, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	intents := engine.NewIntentQueue()
	eng := engine.New(store, store, engine.SystemClock{}, intents, logger)

	sweepCfg := sweep.DefaultConfig(loc)
	sweepCfg.OverdueEvery = *overdueFlag
	scheduler := sweep.New(sweepCfg, eng, logger)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	srv := server.New(eng, intents, store, logger)

	httpServer := &http.Server{
		Addr:    *addrFlag,
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
