package vectorlite

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liliang-cn/vectorlite/pkg/index"
)

// FileConfig is the on-disk shape of a YAML engine configuration, for
// callers (chiefly the CLI) that prefer a config file over building
// Options in code. Fields left unset keep defaultConfig's values.
type FileConfig struct {
	Metric   string `yaml:"metric"`
	Strategy string `yaml:"strategy"`
	Capacity uint32 `yaml:"capacity"`

	HNSW *index.HNSWConfig `yaml:"hnsw"`
	IVF  *index.IVFConfig  `yaml:"ivf"`
}

// LoadOptionsFromYAML reads a FileConfig from path and translates it
// into an equivalent Option slice, suitable for splicing ahead of any
// caller-supplied Options (later Options always win, since they're
// applied in order).
func LoadOptionsFromYAML(path string) ([]Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vectorlite: reading config %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("vectorlite: parsing config %s: %w", path, err)
	}

	var opts []Option
	switch fc.Metric {
	case "cosine":
		opts = append(opts, WithMetric(MetricCosine))
	case "l2":
		opts = append(opts, WithMetric(MetricL2))
	case "dot":
		opts = append(opts, WithMetric(MetricDot))
	case "":
	default:
		return nil, fmt.Errorf("vectorlite: unknown metric %q in %s", fc.Metric, path)
	}

	if fc.Capacity > 0 {
		opts = append(opts, WithCapacity(fc.Capacity))
	}

	switch fc.Strategy {
	case "hnsw":
		cfg := index.DefaultHNSWConfig()
		if fc.HNSW != nil {
			cfg = *fc.HNSW
		}
		opts = append(opts, WithHNSW(cfg))
	case "ivf":
		cfg := index.DefaultIVFConfig()
		if fc.IVF != nil {
			cfg = *fc.IVF
		}
		opts = append(opts, WithIVF(cfg))
	case "bruteforce", "":
	default:
		return nil, fmt.Errorf("vectorlite: unknown strategy %q in %s", fc.Strategy, path)
	}

	return opts, nil
}
