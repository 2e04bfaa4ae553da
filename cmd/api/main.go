package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/covwatch/covwatch/internal/alert"
	"github.com/covwatch/covwatch/internal/config"
	"github.com/covwatch/covwatch/internal/export"
	"github.com/covwatch/covwatch/internal/httpapi"
	"github.com/covwatch/covwatch/internal/logging"
	"github.com/covwatch/covwatch/internal/notify"
	"github.com/covwatch/covwatch/internal/repo"
	"github.com/covwatch/covwatch/internal/repo/memory"
	"github.com/covwatch/covwatch/internal/repo/postgres"
	"github.com/covwatch/covwatch/internal/tracker"
	"github.com/covwatch/covwatch/internal/trend"
)

func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	var (
		samples repo.SampleStore
		states  repo.AlertStateStore
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			log.Fatal(err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal(err)
		}
		samples, states = pg, pg
	} else {
		mem := memory.New() // DB-less mode: state lives for the process only
		samples, states = mem, mem
	}

	analyzer := trend.NewAnalyzer(
		trend.WithEpsilon(cfg.TrendEpsilon),
		trend.WithWindow(cfg.TrendWindow),
	)
	eval := alert.NewEvaluator(samples, states, rules.Rules, logger)
	channels := notify.BuildChannels(rules.Channels, logger)
	disp := notify.NewDispatcher(channels, cfg.NotifyTimeout, logger)
	tr := tracker.New(samples, analyzer, eval, disp, logger)
	exporter := export.NewExporter(samples, analyzer, logger)

	api := httpapi.NewServer(logger, tr, exporter, cfg.TrendQueryDays)

	logger.Info("api_listen",
		zap.String("addr", cfg.Addr),
		zap.Int("rules", len(rules.Rules)),
		zap.Int("channels", len(channels)),
	)
	if err := http.ListenAndServe(cfg.Addr, api.Router()); err != nil {
		log.Fatal(err)
	}
}
