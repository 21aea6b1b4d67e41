package nnet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/stats"
)

// number of batches used for the smoothed training loss
const emaBatches = 20

// Training statistics for one epoch
type Stats struct {
	Epoch         int
	Loss          float64
	Accuracy      float64
	ValidLoss     float64
	ValidAccuracy float64
	Eta           float64
	BestSince     int
	Elapsed       time.Duration
}

func StatsHeaders() []string {
	return []string{"loss", "accuracy", "val loss", "val accuracy", "eta"}
}

func (s Stats) Format() []string {
	return []string{
		fmt.Sprintf("%7.4f", s.Loss),
		fmt.Sprintf("%6.2f%%", s.Accuracy*100),
		fmt.Sprintf("%7.4f", s.ValidLoss),
		fmt.Sprintf("%6.2f%%", s.ValidAccuracy*100),
		fmt.Sprintf("%.3g", s.Eta),
	}
}

func (s Stats) String() string {
	msg := fmt.Sprintf("epoch %3d:", s.Epoch)
	for i, val := range s.Format() {
		msg += fmt.Sprintf("  %s =%s", StatsHeaders()[i], val)
	}
	if s.BestSince > 0 {
		msg += fmt.Sprintf(" [%d]", s.BestSince)
	}
	return msg
}

// Tester interface to evaluate the performance after each epoch, Test method returns true if training should stop.
type Tester interface {
	Test(net *Network, epoch int, loss, accuracy float64, start time.Time) bool
}

// Tester which evaluates the loss and accuracy on the validation set, updates the stats and runs the callbacks.
type TestBase struct {
	Data      *Dataset
	Stats     []Stats
	Callbacks []Callback
}

// Create a new base class which implements the Tester interface.
func NewTestBase(valid *Dataset, callbacks ...Callback) *TestBase {
	return &TestBase{Data: valid, Stats: []Stats{}, Callbacks: callbacks}
}

// Reset stats prior to new run
func (t *TestBase) Reset() {
	t.Stats = t.Stats[:0]
}

// Test performance of the network, called from the Train function on completion of each epoch.
func (t *TestBase) Test(net *Network, epoch int, loss, accuracy float64, start time.Time) bool {
	s := Stats{Epoch: epoch, Loss: loss, Accuracy: accuracy, Eta: net.Optimiser().Eta()}
	s.ValidLoss, s.ValidAccuracy = net.Evaluate(t.Data, nil)
	done := epoch >= net.MaxEpoch
	for _, cb := range t.Callbacks {
		if cb.EpochEnd(net, &s) {
			done = true
		}
	}
	if done {
		for _, cb := range t.Callbacks {
			cb.TrainEnd(net)
		}
	}
	s.Elapsed = time.Since(start)
	t.Stats = append(t.Stats, s)
	return done
}

// TestLogger prints the stats after each epoch and optionally passes them to an observer function.
type TestLogger struct {
	*TestBase
	Observer func(Stats)
}

// Create a new tester which logs stats to stdout.
func NewTestLogger(valid *Dataset, callbacks ...Callback) *TestLogger {
	return &TestLogger{TestBase: NewTestBase(valid, callbacks...)}
}

func (t *TestLogger) Test(net *Network, epoch int, loss, accuracy float64, start time.Time) bool {
	done := t.TestBase.Test(net, epoch, loss, accuracy, start)
	s := t.Stats[len(t.Stats)-1]
	if done || net.LogEvery == 0 || epoch%net.LogEvery == 0 {
		fmt.Println(s)
	}
	if t.Observer != nil {
		t.Observer(s)
	}
	if done {
		fmt.Printf("run time: %s\n", s.Elapsed.Round(10*time.Millisecond))
	}
	return done
}

// Train the network on the given training set by updating the weights. Returns ctx.Err() if the
// context is cancelled before training completes.
func Train(ctx context.Context, net *Network, dset *Dataset, test Tester) error {
	start := time.Now()
	for epoch := 1; epoch <= net.MaxEpoch; epoch++ {
		loss, acc, err := TrainEpoch(ctx, net, dset)
		if err != nil {
			return err
		}
		if test.Test(net, epoch, loss, acc, start) {
			break
		}
	}
	return nil
}

// Perform one training epoch on dataset, returns the mean loss and accuracy over the batches.
func TrainEpoch(ctx context.Context, net *Network, dset *Dataset) (loss, accuracy float64, err error) {
	q := net.queue
	batchSize := net.BatchSize()
	if dset.BatchSize != batchSize {
		panic(fmt.Sprintf("TrainEpoch: dataset batch size %d does not match network %d", dset.BatchSize, batchSize))
	}
	if net.Shuffle {
		dset.Shuffle()
	}
	nclass := net.yOneHot.Dims()[1]
	q.Call(
		num.Fill(net.lossTotal, 0),
		num.Fill(net.errTotal, 0),
	)
	dset.Rewind()
	var avgLoss stats.EMA
	lossVal := []float32{0}
	for batch := 0; batch < dset.Batches; batch++ {
		q.Finish()
		if err = ctx.Err(); err != nil {
			dset.Wait()
			return 0, 0, err
		}
		x, y, _ := dset.NextBatch()
		yPred := net.Fprop(x, true)
		losses := net.OutLayer().Loss(q, y, yPred)
		q.Call(
			num.Sum(losses, net.batchLoss, 1),
			num.Axpy(1, net.batchLoss, net.lossTotal),
			num.Unhot(yPred, net.classes),
			num.Neq(net.classes, y, net.diffs),
			num.Sum(net.diffs, net.batchErr, 1),
			num.Axpy(1, net.batchErr, net.errTotal),
		)
		// gradient of mean cross entropy loss wrt softmax input
		q.Call(
			num.Onehot(y, net.yOneHot, nclass),
			num.Copy(net.inputGrad, yPred),
			num.Axpy(-1, net.yOneHot, net.inputGrad),
			num.Scale(1/float32(batchSize), net.inputGrad),
		)
		if net.DebugLevel >= 2 {
			fmt.Printf("input grad:\n%s", net.inputGrad.String(q))
		}
		net.Bprop(net.inputGrad)
		net.Update()
		if net.DebugLevel >= 1 {
			q.Call(num.Read(net.batchLoss, lossVal)).Finish()
			avgLoss = stats.EMA(avgLoss.Add(float64(lossVal[0])/float64(batchSize), emaBatches))
			if (batch+1)%100 == 0 {
				slog.Debug("train batch", "batch", batch+1, "of", dset.Batches, "loss", float64(avgLoss))
			}
		}
	}
	totals := make([]float32, 2)
	q.Call(
		num.Read(net.lossTotal, totals[:1]),
		num.Read(net.errTotal, totals[1:]),
	).Finish()
	n := float64(dset.Batches * batchSize)
	return float64(totals[0]) / n, 1 - float64(totals[1])/n, nil
}
