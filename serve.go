package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cmykmanya/shopai-sub000/config"
	"github.com/cmykmanya/shopai-sub000/handler"
	"github.com/cmykmanya/shopai-sub000/metrics"
	models "github.com/cmykmanya/shopai-sub000/model"
	"github.com/cmykmanya/shopai-sub000/promotion"
	"github.com/cmykmanya/shopai-sub000/service"
	"github.com/cmykmanya/shopai-sub000/session"
	"github.com/cmykmanya/shopai-sub000/store"
)

// backend is the storage picked by store.driver. Catalog and orders always
// come from store; cart snapshots go to carts.
type backend struct {
	store   service.Backend
	carts   session.Gateway
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	seed, err := cfg.Products()
	if err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := store.NewPostgresStore(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		if err := seedCatalog(ctx, pg, seed, logger); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return &backend{store: pg, carts: pg, closers: []func() error{pg.Close}}, nil
	case config.DriverSQLite:
		sq, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		mem := store.NewMemoryStore(seed...)
		return &backend{store: mem, carts: sq, closers: []func() error{sq.Close, mem.Close}}, nil
	case config.DriverMemory:
		mem := store.NewMemoryStore(seed...)
		return &backend{store: mem, carts: mem, closers: []func() error{mem.Close}}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// seedCatalog creates configured products that the catalog does not have yet.
func seedCatalog(ctx context.Context, c store.Catalog, seed []models.Product, logger *zap.Logger) error {
	for _, p := range seed {
		if p.ID != "" {
			if _, err := c.GetProduct(ctx, p.ID); err == nil {
				continue
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		id, err := c.CreateProduct(ctx, p)
		if err != nil {
			return fmt.Errorf("seed product %q: %w", p.Title, err)
		}
		logger.Info("seeded product", zap.String("id", id), zap.String("title", p.Title))
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	rules, err := cfg.PromotionRules()
	if err != nil {
		return err
	}
	engine, err := promotion.NewEngine(rules)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	sessions := session.NewManager(be.carts, policy, engine,
		session.WithLogger(logger.Named("session")),
		session.WithMetrics(m),
		session.WithSaveTimeout(cfg.Store.SaveTimeout))
	defer sessions.Close()

	svc := service.NewService(be.store, sessions,
		service.WithLogger(logger.Named("service")),
		service.WithMetrics(m))

	r := mux.NewRouter()
	handler.NewHandler(svc,
		handler.WithLogger(logger.Named("http")),
		handler.WithGatherer(reg)).RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
