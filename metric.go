package vectorlite

import "github.com/liliang-cn/vectorlite/pkg/metric"

// Metric selects the vector comparison function used by the core store
// for normalization and by every ANN strategy for scoring.
type Metric = metric.Metric

const (
	MetricCosine = metric.Cosine
	MetricL2     = metric.L2
	MetricDot    = metric.Dot
)
