// Command lookbook serves the fashion content pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/anatolykoptev/go-lookbook"
	"github.com/anatolykoptev/go-lookbook/gsheets"
	"github.com/anatolykoptev/go-lookbook/internal/api"
	"github.com/anatolykoptev/go-lookbook/internal/config"
	"github.com/anatolykoptev/go-lookbook/metrics"
	"github.com/anatolykoptev/go-lookbook/openai"
	"github.com/anatolykoptev/go-lookbook/redisledger"
	"github.com/anatolykoptev/go-lookbook/s3archive"
	"github.com/anatolykoptev/go-lookbook/sqlstore"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lookbook: config:", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(cfg); err != nil {
		slog.Error("lookbook: exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("lookbook: stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pcfg := cfg.Pipeline()
	if err := wireModels(cfg, &pcfg); err != nil {
		return err
	}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("lookbook: close failed", "error", err)
			}
		}
	}()
	stores, cl, err := openStores(ctx, cfg, &pcfg)
	closers = append(closers, cl...)
	if err != nil {
		return err
	}
	switch len(stores) {
	case 0:
		slog.Warn("lookbook: no row store configured, rows will not be persisted")
	case 1:
		pcfg.Store = stores[0]
	default:
		pcfg.Store = stores
	}

	var reports api.ReportLoader
	if cfg.S3.Bucket != "" {
		archive, err := s3archive.New(ctx, s3archive.Config{
			Bucket:   cfg.S3.Bucket,
			Prefix:   cfg.S3.Prefix,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return err
		}
		pcfg.Archiver = archive
		reports = archive
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(reg)
	if err != nil {
		return err
	}
	pcfg.OnPanic = func(tag string, r any) {
		slog.Error("lookbook: recovered panic", "site", tag, "panic", r)
	}
	collector.Instrument(&pcfg)

	pipeline, err := lookbook.New(pcfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()
	if err := metrics.RegisterCache(reg, pipeline.Cache()); err != nil {
		return err
	}

	if level, _ := cfg.SlogLevel(); level <= slog.LevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Options{
		Pipeline:   pipeline,
		Reports:    reports,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Deadline:   cfg.BatchDeadline,
		ShareEmail: cfg.Google.ShareEmail,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("lookbook: http server started", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("lookbook: shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func wireModels(cfg *config.Config, pcfg *lookbook.Config) error {
	vision, err := openai.New(openai.Options{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.VisionModel,
	})
	if err != nil {
		return fmt.Errorf("vision model: %w", err)
	}
	content, err := openai.New(openai.Options{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.ContentModel,
		Temperature: 0.7,
	})
	if err != nil {
		return fmt.Errorf("content model: %w", err)
	}
	pcfg.Vision, pcfg.Content = vision, content
	return nil
}

// openStores builds every configured row store and the Drive notifier. The
// returned closers must be closed even when err is set.
func openStores(ctx context.Context, cfg *config.Config, pcfg *lookbook.Config) (lookbook.MultiStore, []io.Closer, error) {
	var (
		stores  lookbook.MultiStore
		closers []io.Closer
	)

	if cfg.Google.SpreadsheetID != "" {
		opts, err := gsheets.ClientOptions(ctx, cfg.Google.CredentialsFile)
		if err != nil {
			return nil, closers, err
		}
		sheet, err := gsheets.NewStore(ctx, cfg.Google.SpreadsheetID, cfg.Google.SheetName, opts...)
		if err != nil {
			return nil, closers, err
		}
		notifier, err := gsheets.NewNotifier(ctx, cfg.Google.SpreadsheetID, opts...)
		if err != nil {
			return nil, closers, err
		}
		stores = append(stores, sheet)
		pcfg.Notifier = notifier
		slog.Info("lookbook: google sheet store enabled", "sheet", cfg.Google.SheetName)
	}

	if cfg.DatabaseURL != "" {
		db, dbType, err := sqlstore.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, closers, err
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, sqlDB)
		}
		store, err := sqlstore.New(db)
		if err != nil {
			return nil, closers, err
		}
		stores = append(stores, store)
		slog.Info("lookbook: sql store enabled", "type", dbType)
	}

	if cfg.Redis.Addr != "" {
		ledger, err := redisledger.New(ctx, redisledger.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, ledger)
		stores = append(stores, ledger)
		slog.Info("lookbook: redis ledger enabled", "addr", cfg.Redis.Addr)
	}
	return stores, closers, nil
}
