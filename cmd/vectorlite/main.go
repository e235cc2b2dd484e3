package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/vectorlite"
	"github.com/liliang-cn/vectorlite/pkg/crush"
	"github.com/liliang-cn/vectorlite/pkg/index"
	"github.com/liliang-cn/vectorlite/pkg/storage"
)

var (
	storeDir   string
	dbName     string
	dim        int
	metricFl   string
	strategy   string
	jsonOut    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "vectorlite",
	Short: "CLI tool for the vectorlite embeddable vector database",
	Long:  `A command-line interface for managing a file-backed vectorlite engine.`,
}

func openEngine() (*vectorlite.Engine, error) {
	fa, err := storage.NewFileAdapter(storeDir)
	if err != nil {
		return nil, err
	}
	opts := []vectorlite.Option{
		vectorlite.WithDataAdapter(fa),
		vectorlite.WithIndexAdapter(fa),
	}
	if configPath != "" {
		fileOpts, err := vectorlite.LoadOptionsFromYAML(configPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fileOpts...)
	}
	metricName := strings.ToLower(metricFl)
	if configPath != "" && !rootCmd.PersistentFlags().Changed("metric") {
		metricName = "" // keep the config file's metric over the flag default
	}
	switch metricName {
	case "cosine":
		opts = append(opts, vectorlite.WithMetric(vectorlite.MetricCosine))
	case "l2":
		opts = append(opts, vectorlite.WithMetric(vectorlite.MetricL2))
	case "dot":
		opts = append(opts, vectorlite.WithMetric(vectorlite.MetricDot))
	case "":
	default:
		return nil, fmt.Errorf("unknown metric %q", metricFl)
	}
	switch strings.ToLower(strategy) {
	case "hnsw":
		opts = append(opts, vectorlite.WithHNSW(index.DefaultHNSWConfig()))
	case "ivf":
		opts = append(opts, vectorlite.WithIVF(index.DefaultIVFConfig()))
	case "bruteforce", "":
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
	return vectorlite.Open(dbName, dim, opts...)
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create (or open) a vectorlite engine and write its initial snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		if err := eng.Persist(context.Background()); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		fmt.Printf("initialized %q (dim=%d) under %s\n", dbName, dim, storeDir)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Add or update a vector by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		vectorStr, _ := cmd.Flags().GetString("vector")
		metaStr, _ := cmd.Flags().GetString("meta")
		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}
		vec, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		var meta any
		if metaStr != "" {
			if err := json.Unmarshal([]byte(metaStr), &meta); err != nil {
				return fmt.Errorf("invalid --meta JSON: %w", err)
			}
		}

		eng, err := openEngine()
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		ctx := context.Background()
		if _, err := eng.Add(ctx, uint32(id), vec, meta); err != nil {
			return fmt.Errorf("add: %w", err)
		}
		if err := eng.Persist(ctx); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		fmt.Printf("added id %d\n", id)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a vector and its metadata by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		eng, err := openEngine()
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		vec, meta, ok := eng.Get(uint32(id))
		if !ok {
			return fmt.Errorf("id %d not found", id)
		}
		if jsonOut {
			out, _ := json.Marshal(map[string]any{"id": id, "vector": vec, "meta": meta})
			fmt.Println(string(out))
			return nil
		}
		fmt.Printf("id=%d vector=%v meta=%v\n", id, vec, meta)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a vector by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		eng, err := openEngine()
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		ctx := context.Background()
		if err := eng.Delete(ctx, uint32(id)); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if err := eng.Persist(ctx); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		fmt.Printf("deleted id %d\n", id)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the k nearest vectors to a query",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("k")
		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}
		vec, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		eng, err := openEngine()
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		hits, err := eng.FindMany(vec, vectorlite.SearchOptions{K: k})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if jsonOut {
			out, _ := json.Marshal(hits)
			fmt.Println(string(out))
			return nil
		}
		for _, h := range hits {
			fmt.Printf("id=%d score=%.6f meta=%v\n", h.ID, h.Score, h.Meta)
		}
		return nil
	},
}

var persistCmd = &cobra.Command{
	Use:   "persist",
	Short: "Force a fresh snapshot checkpoint and clear the WAL",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		if err := eng.Persist(context.Background()); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		fmt.Println("persisted")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		s := eng.Stats()
		if jsonOut {
			out, _ := json.Marshal(s)
			fmt.Println(string(out))
			return nil
		}
		fmt.Printf("name=%s count=%d dim=%d capacity=%d metric=%s strategy=%s\n",
			s.Name, s.Count, s.Dim, s.Capacity, s.Metric, s.Strategy)
		return nil
	},
}

var crushCmd = &cobra.Command{
	Use:   "crush",
	Short: "CRUSH placement utilities",
}

var crushLocateCmd = &cobra.Command{
	Use:   "locate <id>",
	Short: "Compute the placement group and target set for an id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		pgs, _ := cmd.Flags().GetUint32("pgs")
		replicas, _ := cmd.Flags().GetUint32("replicas")
		targetsStr, _ := cmd.Flags().GetString("targets")
		if targetsStr == "" {
			return fmt.Errorf("--targets is required (key[:weight[:zone]],...)")
		}

		var targets []crush.Target
		for _, spec := range strings.Split(targetsStr, ",") {
			fields := strings.Split(spec, ":")
			t := crush.Target{Key: fields[0], Weight: 1}
			if len(fields) > 1 {
				w, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return fmt.Errorf("invalid weight in %q: %w", spec, err)
				}
				t.Weight = w
			}
			if len(fields) > 2 {
				t.Zone = fields[2]
			}
			targets = append(targets, t)
		}

		placement := crush.Locate(uint32(id), crush.Map{PGs: pgs, Replicas: replicas, Targets: targets})
		if jsonOut {
			out, _ := json.Marshal(placement)
			fmt.Println(string(out))
			return nil
		}
		fmt.Printf("pg=%d primaries=%v\n", placement.PG, placement.Primaries)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&storeDir, "dir", "d", "./vectorlite-data", "Storage directory for the file-backed WAL and snapshot")
	rootCmd.PersistentFlags().StringVarP(&dbName, "name", "n", "default", "Engine name (keys the snapshot/WAL files within --dir)")
	rootCmd.PersistentFlags().IntVar(&dim, "dim", 128, "Vector dimension")
	rootCmd.PersistentFlags().StringVar(&metricFl, "metric", "cosine", "Distance metric: cosine, l2, or dot")
	rootCmd.PersistentFlags().StringVar(&strategy, "strategy", "bruteforce", "ANN strategy: bruteforce, hnsw, or ivf")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file (metric/strategy/capacity/hnsw/ivf); an explicit --metric, or --strategy hnsw|ivf, takes precedence")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	addCmd.Flags().String("vector", "", "Vector values (comma-separated)")
	addCmd.Flags().String("meta", "", "Metadata as a JSON value")

	searchCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	searchCmd.Flags().Int("k", 10, "Number of results")

	crushLocateCmd.Flags().Uint32("pgs", 64, "Number of placement groups")
	crushLocateCmd.Flags().Uint32("replicas", 3, "Number of replicas to select")
	crushLocateCmd.Flags().String("targets", "", "Target pool: key[:weight[:zone]],...")

	crushCmd.AddCommand(crushLocateCmd)

	rootCmd.AddCommand(
		initCmd,
		addCmd,
		getCmd,
		searchCmd,
		deleteCmd,
		persistCmd,
		statsCmd,
		crushCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
