package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"heartrisk/inference"
	"heartrisk/logging"
	"heartrisk/ml"
)

type options struct {
	Input        string
	Output       string
	ModelType    string
	ModelPath    string
	FeaturesPath string
	LogLevel     string
}

func newRootCmd() *cobra.Command {
	opts := options{
		Input:        "./patients.csv",
		Output:       "./results/predictions.csv",
		ModelType:    ml.ModelTypeLogisticRegression,
		ModelPath:    "models/heart_disease_model.json",
		FeaturesPath: "models/features.csv",
		LogLevel:     "warn",
	}

	cmd := &cobra.Command{
		Use:   "predict_batch",
		Short: "Predict heart-disease risk for every patient in a CSV",
		Long: `Reads a patients CSV (a name column plus one column per model feature),
prints one line per patient and writes the results as CSV.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Input, "input", opts.Input, "patients CSV")
	f.StringVar(&opts.Output, "output", opts.Output, "predictions CSV")
	f.StringVar(&opts.ModelType, "model-type", opts.ModelType, "logistic_regression or decision_tree")
	f.StringVar(&opts.ModelPath, "model", opts.ModelPath, "trained model path")
	f.StringVar(&opts.FeaturesPath, "features", opts.FeaturesPath, "feature list path")
	f.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level")
	return cmd
}

func run(ctx context.Context, opts options, out io.Writer) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = opts.LogLevel
	logCfg.Format = "console"
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	artifacts, err := inference.LoadArtifacts(inference.ArtifactConfig{
		ModelType:    opts.ModelType,
		ModelFile:    opts.ModelPath,
		FeaturesFile: opts.FeaturesPath,
	})
	if err != nil {
		if errors.Is(err, ml.ErrModelNotFound) {
			return fmt.Errorf("%w (run train_model first)", err)
		}
		return err
	}
	svc, err := inference.NewService(artifacts, inference.WithLogger(logger))
	if err != nil {
		return err
	}

	f, err := os.Open(opts.Input)
	if err != nil {
		return err
	}
	defer f.Close()
	records, err := inference.ReadRecords(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.Input, err)
	}

	results, err := svc.PredictBatch(ctx, records)
	if err != nil {
		return err
	}
	logger.Info("batch predicted", zap.Int("patients", len(results)))

	for _, r := range results {
		fmt.Fprintf(out, "Patient: %s, Prediction: %s, Probability: %.2f, Risk Level: %s\n",
			r.PatientName, r.Outcome(), r.Probability, r.RiskLevel)
	}
	return writeResults(opts.Output, results)
}

func writeResults(path string, results []inference.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := inference.WriteResults(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
