package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/sanonone/sparsegrid/pkg/core/functor"
	"github.com/sanonone/sparsegrid/pkg/core/grid"
	"github.com/sanonone/sparsegrid/pkg/core/refinement"
	"github.com/sanonone/sparsegrid/pkg/core/types"
	"github.com/sanonone/sparsegrid/pkg/engine"
)

// --- Global Command Variables ---
var (
	configPath string
	dataDir    string
	logLevel   string

	cfg engine.Config

	rootCmd = &cobra.Command{
		Use:   "sparsegrid",
		Short: "Build and adaptively refine persistent sparse grids",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = engine.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			setupLogger(cfg.LogLevel)
			return nil
		},
	}

	generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Create the regular sparse grid in the data directory",
		RunE:  runGenerate,
	}

	refineCmd = &cobra.Command{
		Use:   "refine",
		Short: "Interpolate a test function and refine the grid where its surpluses are largest",
		RunE:  runRefine,
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Print a summary of the stored grid",
		RunE:  runInfo,
	}

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write the grid in its text format to stdout",
		RunE:  runExport,
	}

	serveMetricsCmd = &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose Prometheus metrics while refining in the background",
		RunE:  runServeMetrics,
	}

	functorName  string
	functionName string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path of the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override data_dir from the configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	generateCmd.Flags().Int("dimension", 0, "override dimension")
	generateCmd.Flags().Uint32("level", 0, "override initial_level")
	generateCmd.Flags().Bool("boundaries", false, "create boundary points")

	for _, cmd := range []*cobra.Command{refineCmd, serveMetricsCmd} {
		cmd.Flags().StringVar(&functorName, "functor", "", "refinement criterion (surplus, volume, gini); gini for the impurity variant, surplus otherwise")
		cmd.Flags().StringVar(&functionName, "function", "peak", "test function (peak, parabola, corner)")
		cmd.Flags().Int("passes", 0, "override passes")
		cmd.Flags().Int("refinements", 0, "override refinements_per_pass")
	}
	serveMetricsCmd.Flags().String("addr", "", "override metrics_addr")

	rootCmd.AddCommand(generateCmd, refineCmd, infoCmd, exportCmd, serveMetricsCmd)
}

func setupLogger(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func openEngine() (*engine.Engine, error) {
	e, err := engine.Open(cfg.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to open grid in '%s': %w", cfg.DataDir, err)
	}
	return e, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetInt("dimension"); v > 0 {
		cfg.Dimension = v
	}
	if v, _ := cmd.Flags().GetUint32("level"); v > 0 {
		cfg.InitialLevel = v
	}
	if v, _ := cmd.Flags().GetBool("boundaries"); v {
		cfg.Boundaries = true
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	return printInfo(cmd, e.Info())
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg.InitialLevel = 0
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := printInfo(cmd, e.Info()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "refinable_points: %d\n", e.NumberOfRefinablePoints())
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg.InitialLevel = 0
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	return e.View(func(s *grid.Storage) error {
		return s.Serialize(cmd.OutOrStdout())
	})
}

func runRefine(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd)
	fn, err := testFunction(functionName)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := refineLoop(ctx, cmd, e, fn); err != nil {
		return err
	}
	return e.Save()
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd)
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.MetricsAddr = v
	}
	fn, err := testFunction(functionName)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
			stop()
		}
	}()

	if err := refineLoop(ctx, cmd, e, fn); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := e.Save(); err != nil {
		return err
	}
	slog.Info("refinement finished, serving metrics until interrupted")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func applyRunFlags(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetInt("passes"); v > 0 {
		cfg.Passes = v
	}
	if v, _ := cmd.Flags().GetInt("refinements"); v > 0 {
		cfg.RefinementsPerPass = v
	}
}

// refineLoop runs cfg.Passes passes, recomputing the functor before each.
func refineLoop(ctx context.Context, cmd *cobra.Command, e *engine.Engine, fn func([]float64) float64) error {
	name := functorName
	if name == "" {
		name = "surplus"
		if cfg.Variant == engine.VariantImpurity {
			name = "gini"
		}
	}
	if cfg.Variant == engine.VariantImpurity && name != "gini" {
		return fmt.Errorf("variant %q needs the gini functor, not %q", cfg.Variant, name)
	}

	params := functor.Params{Refinements: cfg.RefinementsPerPass, Limit: cfg.Threshold}
	for pass := 1; pass <= cfg.Passes; pass++ {
		f, err := buildFunctor(e, name, fn, params)
		if err != nil {
			return err
		}
		report, err := e.Refine(ctx, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pass %d: refined %d, created %d, size %d\n",
			pass, len(report.Selected), report.Created, report.SizeBefore+report.Created)
		if report.Created == 0 {
			break
		}
	}
	return nil
}

func buildFunctor(e *engine.Engine, name string, fn func([]float64) float64, params functor.Params) (refinement.Functor, error) {
	switch name {
	case "surplus", "volume":
		alpha, err := e.Interpolate(fn)
		if err != nil {
			return nil, err
		}
		if name == "volume" {
			return functor.NewVolume(alpha, params), nil
		}
		return functor.NewSurplus(alpha, params), nil
	case "gini":
		var table *refinement.ClassTable
		err := e.View(func(s *grid.Storage) error {
			var err error
			table, err = refinement.NewClassTable(s, classDensities(s, fn))
			return err
		})
		if err != nil {
			return nil, err
		}
		return functor.NewGini(table, params), nil
	}
	return nil, fmt.Errorf("unknown functor %q", name)
}

// classDensities splits the grid into two classes around half the maximum
// of the test function. Membership in the upper class ramps linearly from 0
// at value 0 to 1 at the maximum, so only points near the class border are
// impure.
func classDensities(s *grid.Storage, fn func([]float64) float64) [][]float64 {
	values := make([]float64, s.Size())
	for seq, p := range s.All() {
		values[seq] = fn(s.Coordinates(p))
	}
	if len(values) == 0 {
		return nil
	}
	top := floats.Max(values)
	densities := make([][]float64, len(values))
	for seq, v := range values {
		h := 0.0
		if top > 0 {
			h = math.Min(1, math.Max(0, v/top))
		}
		densities[seq] = []float64{h, 1 - h}
	}
	return densities
}

func printInfo(cmd *cobra.Command, info types.StorageInfo) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(info)
}

// testFunction returns one of the built-in functions on the unit cube.
func testFunction(name string) (func([]float64) float64, error) {
	switch name {
	case "peak":
		return func(x []float64) float64 {
			v := 1.0
			for _, xk := range x {
				v *= math.Exp(-50 * (xk - 0.5) * (xk - 0.5))
			}
			return v
		}, nil
	case "parabola":
		return func(x []float64) float64 {
			v := 1.0
			for _, xk := range x {
				v *= 4 * xk * (1 - xk)
			}
			return v
		}, nil
	case "corner":
		return func(x []float64) float64 {
			s := 0.0
			for _, xk := range x {
				s += xk
			}
			return math.Exp(-10 * s)
		}, nil
	}
	return nil, fmt.Errorf("unknown test function %q", name)
}
