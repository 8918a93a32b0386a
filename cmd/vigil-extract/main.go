// Command vigil-extract builds a pose feature dataset from a directory of
// labeled images (one subdirectory per class).
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vigil/internal/dataset"
	"vigil/internal/detection"
	"vigil/internal/logging"
)

func main() {
	fs := pflag.NewFlagSet("vigil-extract", pflag.ExitOnError)
	fs.String("data", "dataset", "Dataset root with one directory per class")
	fs.String("out", ".", "Output directory for X.bin, y.bin and classes.json")
	fs.String("pose-url", "http://localhost:8081", "Pose sidecar endpoint")
	fs.Duration("timeout", 15*time.Second, "Per-image inference timeout")
	fs.String("log-level", "info", "Log level")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("VIGIL_EXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)

	logger := logging.New(v.GetString("log-level"), os.Stderr, true)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	det := detection.NewPoseDetector(detection.Config{
		Endpoint: v.GetString("pose-url"),
		Timeout:  v.GetDuration("timeout"),
	})
	if !det.IsHealthy() {
		logger.Fatal().Str("endpoint", v.GetString("pose-url")).Msg("pose sidecar not available")
	}

	ds, stats, err := dataset.Extract(ctx, v.GetString("data"), det, logging.Component(logger, "dataset"))
	logger.Info().
		Int("files", stats.Files).
		Int("undecodable", stats.Undecodable).
		Int("no_person", stats.NoPerson).
		Int("samples", stats.Samples).
		Msg("extraction finished")
	if err != nil {
		logger.Fatal().Err(err).Msg("extraction failed")
	}

	out := v.GetString("out")
	if err := ds.Save(out); err != nil {
		logger.Fatal().Err(err).Msg("failed to save dataset")
	}
	rows, cols := ds.X.Dims()
	logger.Info().Str("out", out).Int("rows", rows).Int("cols", cols).Strs("classes", ds.Classes).Msg("saved pose dataset")
}
