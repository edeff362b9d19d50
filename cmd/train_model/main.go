package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"heartrisk/config"
	"heartrisk/db"
	"heartrisk/logging"
	"heartrisk/training"
)

type options struct {
	training.Config
	ConfigPath string
	DBPath     string
	LogLevel   string
}

func newRootCmd() *cobra.Command {
	opts := options{Config: training.DefaultConfig(), ConfigPath: "config.yaml", LogLevel: "warn"}

	cmd := &cobra.Command{
		Use:   "train_model",
		Short: "Train the heart-disease risk model",
		Long: `Fits a classifier on a labeled patient CSV, evaluates it on a stratified
held-out split and writes the model, its feature list and a metrics report.

Settings come from the ml section of config.yaml when it exists; flags given
on the command line win. Running with no flags and no config file reads
./hd_training_dataset.csv and writes into models/.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := resolveOptions(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, merged, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "config.yaml to read training settings from")
	f.StringVar(&opts.DataPath, "data", opts.DataPath, "labeled training CSV")
	f.StringVar(&opts.Charset, "charset", opts.Charset, "training CSV encoding (utf-8, gbk, latin1, windows-1252)")
	f.StringVar(&opts.ModelType, "model-type", opts.ModelType, "logistic_regression or decision_tree")
	f.StringVar(&opts.ModelPath, "model", opts.ModelPath, "model output path")
	f.StringVar(&opts.FeaturesPath, "features", opts.FeaturesPath, "feature list output path")
	f.StringVar(&opts.MetricsPath, "metrics", opts.MetricsPath, "metrics report output path")
	f.IntVar(&opts.MaxIter, "max-iter", opts.MaxIter, "maximum solver iterations")
	f.IntVar(&opts.MaxDepth, "max-depth", opts.MaxDepth, "maximum tree depth for decision_tree")
	f.Float64Var(&opts.TestRatio, "test-ratio", opts.TestRatio, "held-out fraction")
	f.Int64Var(&opts.Seed, "seed", opts.Seed, "split and solver seed")
	f.StringVar(&opts.DBPath, "db", "", "SQLite database for the training log (optional)")
	f.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level")
	return cmd
}

// resolveOptions starts from the loaded configuration and applies every flag
// that was set explicitly.
func resolveOptions(cmd *cobra.Command, flags options) (options, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return options{}, fmt.Errorf("load config: %w", err)
	}
	opts := options{
		Config:     trainingConfig(cfg.ML),
		ConfigPath: flags.ConfigPath,
		DBPath:     cfg.Database.Path,
		LogLevel:   flags.LogLevel,
	}

	overrides := map[string]func(){
		"data":       func() { opts.DataPath = flags.DataPath },
		"charset":    func() { opts.Charset = flags.Charset },
		"model-type": func() { opts.ModelType = flags.ModelType },
		"model":      func() { opts.ModelPath = flags.ModelPath },
		"features":   func() { opts.FeaturesPath = flags.FeaturesPath },
		"metrics":    func() { opts.MetricsPath = flags.MetricsPath },
		"max-iter":   func() { opts.MaxIter = flags.MaxIter },
		"max-depth":  func() { opts.MaxDepth = flags.MaxDepth },
		"test-ratio": func() { opts.TestRatio = flags.TestRatio },
		"seed":       func() { opts.Seed = flags.Seed },
		"db":         func() { opts.DBPath = flags.DBPath },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	return opts, nil
}

func trainingConfig(m config.MLConfig) training.Config {
	return training.Config{
		DataPath:     m.DataPath,
		Charset:      m.Charset,
		ModelType:    m.ModelType,
		ModelPath:    m.ModelPath(),
		FeaturesPath: m.FeaturesPath(),
		MetricsPath:  m.MetricsPath(),
		MaxIter:      m.MaxIter,
		MaxDepth:     m.MaxDepth,
		TestRatio:    m.TestRatio,
		Seed:         m.Seed,
	}
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

	trainerOpts := []training.Option{training.WithLogger(logger)}
	if opts.DBPath != "" {
		store, err := db.Open(opts.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		trainerOpts = append(trainerOpts, training.WithLogStore(store))
	}

	report, err := training.NewTrainer(opts.Config, trainerOpts...).Run(ctx)
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		return err
	}

	m := report.Metrics
	fmt.Fprintf(out, "\nAccuracy: %.2f\n", m.Accuracy)
	fmt.Fprintf(out, "Precision: %.2f\n", m.Precision)
	fmt.Fprintf(out, "Recall (Sensitivity): %.2f\n", m.Recall)
	fmt.Fprintf(out, "Specificity: %.2f\n", m.Specificity)
	fmt.Fprintf(out, "ROC AUC: %.2f\n", m.ROCAUC)
	fmt.Fprintf(out, "\nModel saved to %s\n", opts.ModelPath)
	fmt.Fprintf(out, "Features saved to %s\n", opts.FeaturesPath)
	fmt.Fprintf(out, "Metrics saved to %s\n", opts.MetricsPath)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
