package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/compliance"
	"github.com/sells-group/fee-cli/internal/dataset"
	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/letter"
	"github.com/sells-group/fee-cli/internal/metrics"
	"github.com/sells-group/fee-cli/internal/model"
	"github.com/sells-group/fee-cli/internal/resilience"
	"github.com/sells-group/fee-cli/internal/resolve"
	"github.com/sells-group/fee-cli/internal/store"
	"github.com/sells-group/fee-cli/internal/workbook"
)

// appEnv holds the collaborators shared by the commands.
type appEnv struct {
	Letters  *letter.Service
	Store    store.Store
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Datasets *dataset.Cache
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initStore opens and migrates the configured store, retrying while the
// database is unreachable or locked.
func initStore(ctx context.Context) (store.Store, error) {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("store", "open")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (store.Store, error) {
		pool := cfg.Store.Pool
		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &pool)
		if err != nil {
			return nil, eris.Wrap(err, "init store")
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return st, nil
	})
}

// initEnv wires the letter service from cfg. withStore opens and migrates
// the calculation store; without it nothing is recorded.
func initEnv(ctx context.Context, withStore bool) (*appEnv, error) {
	r, err := resolve.New(cfg.Resolve)
	if err != nil {
		return nil, eris.Wrap(err, "init resolver")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := &appEnv{Metrics: m, Registry: reg}

	opts := []letter.Option{letter.WithMetrics(m)}
	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		e.Store = st
		opts = append(opts, letter.WithStore(st))
	}
	if path := cfg.AuditPath(); path != "" {
		opts = append(opts, letter.WithAuditPath(path))
	}

	e.Letters = letter.NewService(r,
		fee.NewCalculator(cfg.Fees.Options),
		compliance.NewGate(cfg.Compliance),
		cfg.Fees.Defaults,
		opts...,
	)
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("dataset", "load workbook")
	e.Datasets = dataset.NewCache(dataset.LoaderFunc(func(ctx context.Context, path string) (*model.Dataset, error) {
		ds, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.Dataset, error) {
			return workbook.Load(ctx, path)
		})
		m.ObserveDatasetLoad(err)
		return ds, err
	}))
	return e, nil
}

// loadDataset reads the configured reference workbook.
func (e *appEnv) loadDataset(ctx context.Context) (*model.Dataset, error) {
	if cfg.Workbook.Path == "" {
		return nil, eris.New("workbook path is required (--workbook or FEECLI_WORKBOOK_PATH)")
	}
	return e.Datasets.Get(ctx, cfg.Workbook.Path)
}
