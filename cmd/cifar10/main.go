// Command cifar10 trains and compares convolutional networks on the CIFAR-10 data set.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/cifar"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/experiment"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/report"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/web"
)

type options struct {
	config  string
	debug   bool
	dataDir string
	outDir  string
	models  []string
	epochs  int
	threads int
	noFetch bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "cifar10",
		Short:         "Train and compare CNN models on the CIFAR-10 images",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	f := root.PersistentFlags()
	f.StringVarP(&opts.config, "config", "c", "", "experiment config file in YAML format")
	f.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	f.StringVar(&opts.dataDir, "data", "", "data directory")
	f.StringVar(&opts.outDir, "out", "", "output directory for plots and weights")
	f.StringSliceVarP(&opts.models, "models", "m", nil, "models to run: "+strings.Join(experimentModels(), ","))
	f.IntVar(&opts.epochs, "epochs", 0, "override max epochs for each model")
	f.IntVar(&opts.threads, "threads", 0, "number of worker threads, 0 for all cores")
	f.BoolVar(&opts.noFetch, "no-download", false, "do not download the data set if it is missing")

	root.AddCommand(newPrepareCmd(opts), newTrainCmd(opts), newSummaryCmd(opts), newServeCmd(opts))
	return root
}

func experimentModels() []string {
	var names []string
	for _, m := range experiment.Default().Models {
		names = append(names, m.Name)
	}
	return names
}

// load the config file, if any, and apply the command line overrides
func (o *options) load() (experiment.Config, error) {
	cfg := experiment.Default()
	if o.config != "" {
		var err error
		if cfg, err = experiment.Load(o.config); err != nil {
			return cfg, err
		}
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.outDir != "" {
		cfg.OutDir = o.outDir
	}
	if o.threads > 0 {
		cfg.Threads = o.threads
	}
	if o.noFetch {
		cfg.Download = false
	}
	if len(o.models) > 0 {
		var err error
		if cfg, err = cfg.Select(o.models...); err != nil {
			return cfg, err
		}
	}
	if o.epochs > 0 {
		for i := range cfg.Models {
			cfg.Models[i].Epochs = o.epochs
		}
	}
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newPrepareCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Download the data set, convert it and show the class distribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			data, err := experiment.LoadData(ctx, cfg, nnet.NewRand(cfg.Seed))
			if err != nil {
				return err
			}
			data.Describe(cmd.OutOrStdout())
			if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
				return err
			}
			n := max(cfg.Samples, 8)
			name := filepath.Join(cfg.OutDir, "images.png")
			images := data.Train.Images[:min(n, data.Train.Len())]
			if err := report.SaveMontage(name, images, 8, 2); err != nil {
				return err
			}
			slog.Info("saved sample images", "file", name)
			return nil
		},
	}
}

func newTrainCmd(opts *options) *cobra.Command {
	var saveConfig string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train each model, plot the history and compare the test accuracy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if saveConfig != "" {
				if err := cfg.Save(saveConfig); err != nil {
					return err
				}
			}
			cfg.Out = cmd.OutOrStdout()
			ctx, cancel := signalContext()
			defer cancel()
			results, err := experiment.Run(ctx, cfg, nil)
			for _, res := range results {
				slog.Debug("model complete", "model", res.Model, "files", res.Files)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&saveConfig, "save-config", "", "write the resolved config to this file")
	return cmd
}

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the layers and parameter counts of each model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			q := num.NewDevice().NewQueue(cfg.Threads)
			defer q.Shutdown()
			for _, m := range cfg.Models {
				conf, err := cfg.Network(m)
				if err != nil {
					return err
				}
				net := nnet.New(q, conf, 1, []int{cifar.Height, cifar.Width, cifar.Channels}, nnet.NewRand(cfg.Seed))
				report.Summary(cmd.OutOrStdout(), m.Name, net)
				fmt.Fprintln(cmd.OutOrStdout())
				net.Release()
			}
			return nil
		},
	}
}

func newServeCmd(opts *options) *cobra.Command {
	wopts := web.DefaultOptions()
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard to start training and view progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if wopts.Password == "" {
				wopts.Password = os.Getenv("CIFAR10_PASSWORD")
			}
			cfg.Out = cmd.OutOrStdout()
			s, err := web.NewServer(cfg, wopts)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return s.ListenAndServe(ctx, addr)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8080", "listen address")
	f.StringVar(&wopts.User, "user", wopts.User, "user name for basic auth")
	f.StringVar(&wopts.Password, "password", "", "password for basic auth, defaults to $CIFAR10_PASSWORD")
	f.IntVar(&wopts.Scale, "scale", wopts.Scale, "image scale factor")
	return cmd
}
