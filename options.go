package vectorlite

import (
	"github.com/liliang-cn/vectorlite/pkg/index"
	"github.com/liliang-cn/vectorlite/pkg/storage"
)

const defaultCapacity = 1024

type engineConfig struct {
	metric       Metric
	capacity     uint32
	strategy     Strategy
	hnsw         index.HNSWConfig
	ivf          index.IVFConfig
	logger       Logger
	indexAdapter storage.Adapter
	dataAdapter  storage.Adapter
}

func defaultConfig() engineConfig {
	return engineConfig{
		metric:   MetricCosine,
		capacity: defaultCapacity,
		strategy: StrategyBruteForce,
		hnsw:     index.DefaultHNSWConfig(),
		ivf:      index.DefaultIVFConfig(),
		logger:   NopLogger(),
	}
}

// Option configures an Engine at Open time.
type Option func(*engineConfig)

// WithMetric sets the vector comparison function. Default cosine.
func WithMetric(m Metric) Option {
	return func(c *engineConfig) { c.metric = m }
}

// WithCapacity sets the store's initial capacity. Default 1024.
func WithCapacity(n uint32) Option {
	return func(c *engineConfig) { c.capacity = n }
}

// WithHNSW selects the HNSW strategy with cfg.
func WithHNSW(cfg index.HNSWConfig) Option {
	return func(c *engineConfig) { c.strategy = StrategyHNSW; c.hnsw = cfg }
}

// WithIVF selects the IVF strategy with cfg.
func WithIVF(cfg index.IVFConfig) Option {
	return func(c *engineConfig) { c.strategy = StrategyIVF; c.ivf = cfg }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// WithIndexAdapter sets the adapter backing the snapshot keyspace.
// Defaults to a MemAdapter if unset.
func WithIndexAdapter(a storage.Adapter) Option {
	return func(c *engineConfig) { c.indexAdapter = a }
}

// WithDataAdapter sets the adapter backing the WAL keyspace. Defaults
// to a MemAdapter if unset.
func WithDataAdapter(a storage.Adapter) Option {
	return func(c *engineConfig) { c.dataAdapter = a }
}
