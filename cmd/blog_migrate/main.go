package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"blog_migrate/internal/base"
	"blog_migrate/internal/config"
	"blog_migrate/internal/legacy"
	"blog_migrate/internal/remap"
	"blog_migrate/internal/seed"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var connect = base.Connect

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, out io.Writer) int {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(config.DefaultEnvFiles)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Error(cfgErr.Error())
			log.Info(cfgErr.Hint())
		} else {
			log.WithError(err).Error("load configuration")
		}
		return 1
	}
	log.SetLevel(cfg.Level())

	data, err := seed.Load(cfg.SeedFile)
	if err != nil {
		log.WithError(err).Error("load seed")
		return 1
	}
	r := remap.New(data.Mapping(), data.FallbackSlug)

	if cfg.LegacyDatabaseURL != "" {
		auditLegacy(cfg, r, log)
	}

	db, dialect, err := connect(ctx, cfg)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Error(cfgErr.Error())
			log.Info(cfgErr.Hint())
			return 1
		}
		log.WithError(err).Error("connection error")
		return 1
	}
	defer db.Close()
	log.WithField("dialect", dialect.Name).Info("connected")

	report, err := base.NewLoader(db, dialect, r, log).Run(ctx, data)
	if err != nil {
		log.WithError(err).Error("migration aborted")
		return 1
	}
	base.Summarize(log, report)
	return 0
}

// auditLegacy never fails the run, the legacy database is optional.
func auditLegacy(cfg *config.Config, r *remap.Remapper, log logrus.FieldLogger) {
	conn, err := legacy.Connect(cfg)
	if err != nil {
		log.WithError(err).Warn("legacy audit skipped")
		return
	}
	defer conn.Close()

	if _, err := legacy.Audit(conn, cfg.LegacyPostsTable, cfg.LegacyCategoryColumn, r, log); err != nil {
		log.WithError(err).Warn("legacy audit failed")
	}
}
