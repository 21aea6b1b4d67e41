package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/cifar"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/img"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/report"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/stats"
)

// directory under the data dir with the extracted batch files
const SourceDir = "cifar-10-batches-bin"

// Observer is notified of progress while the experiment runs. Calls are made from the training goroutine.
type Observer interface {
	ModelStart(run, model string, conf nnet.Config, summary []nnet.LayerSummary)
	EpochEnd(run, model string, s nnet.Stats)
	ModelEnd(run string, res Result)
}

// Result of training and testing one model
type Result struct {
	report.Row
	Run     string
	History []nnet.Stats
	// predicted class for each test image
	Pred  []int32
	Files []string
}

// Data has the prepared data sets
type Data struct {
	Train, Valid, Test *img.Data
}

// LoadData downloads the data set if needed and enabled, loads it and splits off the validation set.
func LoadData(ctx context.Context, cfg Config, rng *rand.Rand) (*Data, error) {
	srcDir := filepath.Join(cfg.DataDir, SourceDir)
	if cfg.Download {
		if err := cifar.Download(ctx, cfg.URL, srcDir); err != nil {
			return nil, err
		}
	}
	train, test, err := cifar.Prepare(cfg.DataDir, srcDir)
	if err != nil {
		return nil, fmt.Errorf("error loading data: %w", err)
	}
	d := &Data{Test: test}
	d.Train, d.Valid = cifar.Split(train, cfg.ValidFrac, rng)
	return d, nil
}

// Describe prints the shapes and class distribution of each set.
func (d *Data) Describe(w io.Writer) {
	for _, s := range []struct {
		name string
		data *img.Data
	}{{"train", d.Train}, {"valid", d.Valid}, {"test", d.Test}} {
		images, labels := cifar.Shapes(s.data)
		fmt.Fprintf(w, "%-5s images %s labels %s\n", s.name, images, labels)
	}
	report.Distribution(w, d.Train.Classes(), []string{"train", "valid", "test"},
		cifar.ClassCounts(d.Train), cifar.ClassCounts(d.Valid), cifar.ClassCounts(d.Test))
}

// Run executes the pipeline for each model in turn and returns the results. If the context is
// cancelled the results for the models completed so far are returned with the context error.
func Run(ctx context.Context, cfg Config, obs Observer) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	run := uuid.NewString()
	log := slog.With("run", run)
	log.Info("start experiment", "models", len(cfg.Models), "data", cfg.DataDir, "out", cfg.OutDir)
	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return nil, err
	}
	rng := nnet.NewRand(cfg.Seed)
	data, err := LoadData(ctx, cfg, rng)
	if err != nil {
		return nil, err
	}
	data.Describe(out)
	if cfg.Samples > 0 {
		name := filepath.Join(cfg.OutDir, "samples.png")
		if err := report.SaveMontage(name, report.Augmented(data.Train, cfg.Samples, rng), 8, 2); err != nil {
			return nil, err
		}
		log.Info("saved augmented samples", "file", name)
	}
	dev := num.NewDevice()
	var results []Result
	for _, m := range cfg.Models {
		res, err := runModel(ctx, dev, cfg, m, data, rng, run, out, obs)
		if err != nil {
			return results, fmt.Errorf("%s: %w", m.Name, err)
		}
		results = append(results, res)
	}
	fmt.Fprintln(out)
	report.Compare(out, Rows(results))
	return results, nil
}

// Rows returns the summary line for each result
func Rows(results []Result) []report.Row {
	rows := make([]report.Row, len(results))
	for i, r := range results {
		rows[i] = r.Row
	}
	return rows
}

func runModel(ctx context.Context, dev num.Device, cfg Config, m Model, data *Data, rng *rand.Rand,
	run string, out io.Writer, obs Observer) (res Result, err error) {
	conf, err := cfg.Network(m)
	if err != nil {
		return res, err
	}
	log := slog.With("run", run, "model", m.Name)
	q := dev.NewQueue(conf.Threads)
	defer q.Shutdown()
	q.Profiling(conf.Profile)

	net := nnet.New(q, conf, conf.TrainBatch, data.Train.Shape(), rng)
	defer net.Release()
	net.InitWeights()
	fmt.Fprintln(out)
	report.Summary(out, m.Name, net)
	if obs != nil {
		obs.ModelStart(run, m.Name, conf, net.Summary())
	}

	threads := q.Threads()
	train := data.Train.SetTransformer(img.NewTransformer(img.Augment, cifar.Mean, cifar.StdDev, threads, rng))
	valid := data.Valid.SetTransformer(img.NewTransformer(img.Normalise, cifar.Mean, cifar.StdDev, threads, rng))
	test := data.Test.SetTransformer(img.NewTransformer(img.Normalise, cifar.Mean, cifar.StdDev, threads, rng))

	trainSet := nnet.NewDataset(dev, train, conf.TrainBatch, conf.MaxSamples, true, rng)
	defer trainSet.Release()
	validSet := nnet.NewDataset(dev, valid, conf.TrainBatch, 0, false, rng)
	defer validSet.Release()

	callbacks := conf.Callbacks()
	tester := nnet.NewTestLogger(validSet, callbacks...)
	epochTime := new(stats.Average)
	var last time.Duration
	tester.Observer = func(s nnet.Stats) {
		epochTime.Add((s.Elapsed - last).Seconds())
		last = s.Elapsed
		log.Debug("epoch", "epoch", s.Epoch, "loss", s.Loss, "val_loss", s.ValidLoss, "val_acc", s.ValidAccuracy, "eta", s.Eta)
		if obs != nil {
			obs.EpochEnd(run, m.Name, s)
		}
	}
	log.Info("train", "samples", trainSet.Samples, "batches", trainSet.Batches, "epochs", conf.MaxEpoch)
	start := time.Now()
	if err = nnet.Train(ctx, net, trainSet, tester); err != nil {
		return res, err
	}

	testSet := nnet.NewDataset(dev, test, conf.TrainBatch, 0, false, rng)
	defer testSet.Release()
	pred := make([]int32, test.Len())
	testLoss, testAcc := net.Evaluate(testSet, pred)
	fmt.Fprintf(out, "%s test accuracy: %.4f\n", m.Name, testAcc)

	total, trainable := net.NumParams()
	res = Result{
		Row: report.Row{
			Model:        m.Name,
			Params:       total,
			Trainable:    trainable,
			Epochs:       len(tester.Stats),
			BestEpoch:    bestEpoch(callbacks, tester.Stats),
			TestLoss:     testLoss,
			TestAccuracy: testAcc,
			Duration:     time.Since(start),
			EpochTime:    epochTime,
		},
		Run:     run,
		History: tester.Stats,
		Pred:    pred,
	}
	log.Info("tested", "loss", testLoss, "accuracy", testAcc, "epochs", res.Epochs, "duration", res.Duration)

	if res.Files, err = report.SaveHistory(cfg.OutDir, m.Name, tester.Stats); err != nil {
		return res, err
	}
	if cfg.SaveWeights {
		if err = conf.Save(m.Name + ".json"); err != nil {
			return res, err
		}
		if err = net.SaveWeights(m.Name + ".weights"); err != nil {
			return res, err
		}
	}
	if obs != nil {
		obs.ModelEnd(run, res)
	}
	return res, nil
}

// epoch with the lowest validation loss, as tracked by early stopping if enabled
func bestEpoch(callbacks []nnet.Callback, history []nnet.Stats) int {
	for _, cb := range callbacks {
		if es, ok := cb.(*nnet.EarlyStopping); ok {
			return es.BestEpoch()
		}
	}
	best := 0
	for i, s := range history {
		if best == 0 || s.ValidLoss < history[best-1].ValidLoss {
			best = i + 1
		}
	}
	return best
}
