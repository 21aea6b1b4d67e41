// Package nnet contains routines for constructing, training and testing neural networks.
package nnet

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
)

// Network type represents a multilayer neural network model.
type Network struct {
	Config
	Layers    []Layer
	queue     num.Queue
	optimiser Optimiser
	rng       *rand.Rand
	inShape   []int
	classes   num.Array
	diffs     num.Array
	yOneHot   num.Array
	inputGrad num.Array
	batchLoss num.Array
	batchErr  num.Array
	lossTotal num.Array
	errTotal  num.Array
}

// LayerData holds a copy of the parameters for one layer. Mean and Var are set for batch normalisation layers.
type LayerData struct {
	Layer   int
	Type    string
	Weights []float32
	Biases  []float32
	Mean    []float32
	Var     []float32
}

// LayerSummary describes one layer for the model summary.
type LayerSummary struct {
	Name     string
	OutShape []int
	Params   int
}

// New function creates a new network with the given layers. The input shape excludes the batch dimension.
func New(q num.Queue, conf Config, batchSize int, inShape []int, rng *rand.Rand) *Network {
	opt, err := NewOptimiser(conf)
	if err != nil {
		panic(err)
	}
	n := &Network{Config: conf, queue: q, optimiser: opt, rng: rng}
	n.inShape = append([]int{batchSize}, inShape...)
	n.Layers, _ = initLayers(q, conf.Layers, n.inShape, rng)
	if _, ok := n.Layers[len(n.Layers)-1].(OutputLayer); !ok {
		panic("network: last layer must be an output layer")
	}
	nclass := n.OutShape()[1]
	n.classes = q.NewArray(num.Int32, batchSize)
	n.diffs = q.NewArray(num.Int32, batchSize)
	n.yOneHot = q.NewArray(num.Float32, batchSize, nclass)
	n.inputGrad = q.NewArray(num.Float32, batchSize, nclass)
	n.batchLoss = q.NewArray(num.Float32)
	n.batchErr = q.NewArray(num.Float32)
	n.lossTotal = q.NewArray(num.Float32)
	n.errTotal = q.NewArray(num.Float32)
	return n
}

// Release allocated arrays
func (n *Network) Release() {
	for _, layer := range n.Layers {
		layer.Release()
	}
	num.Release(n.classes, n.diffs, n.yOneHot, n.inputGrad, n.batchLoss, n.batchErr, n.lossTotal, n.errTotal)
}

// Queue used for network operations
func (n *Network) Queue() num.Queue { return n.queue }

// Optimiser used to update the weights
func (n *Network) Optimiser() Optimiser { return n.optimiser }

// InShape is the shape of the input including the batch dimension
func (n *Network) InShape() []int { return n.inShape }

// OutShape is the shape of the output including the batch dimension
func (n *Network) OutShape() []int { return n.Layers[len(n.Layers)-1].OutShape() }

// BatchSize used when the network was created
func (n *Network) BatchSize() int { return n.inShape[0] }

// Initialise network weights using the configured scheme.
func (n *Network) InitWeights() {
	for _, l := range n.ParamLayers() {
		l.InitParams(n.queue, n.WeightInit, n.rng)
	}
	if n.DebugLevel >= 2 {
		n.PrintWeights()
	}
}

// ParamLayers returns all layers with parameters in order, including those nested in blocks.
func (n *Network) ParamLayers() []ParamLayer {
	var res []ParamLayer
	walkLayers(n.Layers, func(l Layer) {
		if p, ok := l.(ParamLayer); ok {
			res = append(res, p)
		}
	})
	return res
}

func walkLayers(layers []Layer, fn func(Layer)) {
	for _, l := range layers {
		fn(l)
		if b, ok := l.(BlockLayer); ok {
			walkLayers(b.Sublayers(), fn)
		}
	}
}

// NumParams is the total number of parameters including non-trainable batch normalisation statistics.
func (n *Network) NumParams() (total, trainable int) {
	for _, l := range n.ParamLayers() {
		trainable += l.NumParams()
		total += l.NumParams()
		if s, ok := l.(StatsLayer); ok {
			mean, variance := s.Stats()
			total += mean.Size() + variance.Size()
		}
	}
	return total, trainable
}

// Accessor for output layer
func (n *Network) OutLayer() OutputLayer {
	return n.Layers[len(n.Layers)-1].(OutputLayer)
}

// Feed forward the input to get the predicted output. If train is set then batch
// normalisation uses the batch statistics and dropout is applied.
func (n *Network) Fprop(input num.Array, train bool) num.Array {
	pred := input
	for i, layer := range n.Layers {
		if n.DebugLevel >= 3 {
			fmt.Printf("layer %d input\n%s", i, pred.String(n.queue))
		}
		pred = layer.Fprop(n.queue, pred, train)
	}
	return pred
}

// Back propagate the gradient with respect to the output layer input.
func (n *Network) Bprop(grad num.Array) {
	bpropLayers(n.queue, n.Layers, grad)
}

// Update the weights using the gradients from the last call to Bprop
func (n *Network) Update() {
	n.optimiser.Next()
	for _, l := range n.ParamLayers() {
		l.UpdateParams(n.queue, n.optimiser)
	}
}

// Predict output given input data
func (n *Network) Predict(input, classes num.Array) num.Array {
	yPred := n.Fprop(input, false)
	if n.DebugLevel >= 2 {
		fmt.Printf("yPred\n%s", yPred.String(n.queue))
	}
	n.queue.Call(num.Unhot(yPred, classes))
	return yPred
}

// Evaluate calculates the mean loss and the accuracy over the data set in inference mode.
// If pred slice is not nil then it is filled with the predicted classes.
func (n *Network) Evaluate(dset *Dataset, pred []int32) (loss, accuracy float64) {
	q := n.queue
	batch := n.BatchSize()
	if dset.BatchSize != batch {
		panic(fmt.Sprintf("Evaluate: dataset batch size %d does not match network %d", dset.BatchSize, batch))
	}
	lossBuf := make([]float32, batch)
	diffBuf := make([]int32, batch)
	classBuf := make([]int32, batch)
	var lossSum float64
	var errors, total int
	dset.Rewind()
	for i := 0; i < dset.Batches; i++ {
		x, y, count := dset.NextBatch()
		yPred := n.Predict(x, n.classes)
		losses := n.OutLayer().Loss(q, y, yPred)
		q.Call(
			num.Neq(n.classes, y, n.diffs),
			num.Read(losses, lossBuf),
			num.Read(n.diffs, diffBuf),
			num.Read(n.classes, classBuf),
		).Finish()
		for j := 0; j < count; j++ {
			lossSum += float64(lossBuf[j])
			errors += int(diffBuf[j])
		}
		if pred != nil {
			copy(pred[i*batch:], classBuf[:count])
		}
		total += count
	}
	if total == 0 {
		return 0, 0
	}
	return lossSum / float64(total), 1 - float64(errors)/float64(total)
}

// Export returns a copy of the current weights and biases and batch normalisation statistics.
func (n *Network) Export() []LayerData {
	var res []LayerData
	for i, l := range n.ParamLayers() {
		W, B := l.Params()
		d := LayerData{Layer: i, Type: l.Type(), Weights: make([]float32, W.Size())}
		n.queue.Call(num.Read(W, d.Weights))
		if B != nil {
			d.Biases = make([]float32, B.Size())
			n.queue.Call(num.Read(B, d.Biases))
		}
		if s, ok := l.(StatsLayer); ok {
			mean, variance := s.Stats()
			d.Mean = make([]float32, mean.Size())
			d.Var = make([]float32, variance.Size())
			n.queue.Call(num.Read(mean, d.Mean), num.Read(variance, d.Var))
		}
		res = append(res, d)
	}
	n.queue.Finish()
	return res
}

// Import sets the network parameters from a previous Export.
func (n *Network) Import(params []LayerData) error {
	layers := n.ParamLayers()
	if len(params) != len(layers) {
		return fmt.Errorf("import error: have %d parameter layers, expect %d", len(params), len(layers))
	}
	for i, p := range params {
		l := layers[i]
		W, B := l.Params()
		if p.Layer != i || p.Type != l.Type() {
			return fmt.Errorf("layer %d import error: have %s layer %d, expect %s", i, p.Type, p.Layer, l.Type())
		}
		if len(p.Weights) != W.Size() || (B != nil && len(p.Biases) != B.Size()) {
			return fmt.Errorf("layer %d import error: size mismatch - have %d %d", i, len(p.Weights), len(p.Biases))
		}
		n.queue.Call(num.Write(W, p.Weights))
		if B != nil {
			n.queue.Call(num.Write(B, p.Biases))
		}
		if s, ok := l.(StatsLayer); ok {
			mean, variance := s.Stats()
			if len(p.Mean) != mean.Size() || len(p.Var) != variance.Size() {
				return fmt.Errorf("layer %d import error: missing batch norm statistics", i)
			}
			n.queue.Call(num.Write(mean, p.Mean), num.Write(variance, p.Var))
		}
	}
	n.queue.Finish()
	return nil
}

// Save the network weights in gob format under DataDir
func (n *Network) SaveWeights(name string) error {
	if err := os.MkdirAll(DataDir, 0755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(DataDir, name))
	if err != nil {
		return err
	}
	if err = gob.NewEncoder(f).Encode(n.Export()); err != nil {
		f.Close()
		return fmt.Errorf("error encoding weights: %w", err)
	}
	slog.Debug("saved weights", "file", name)
	return f.Close()
}

// Load the network weights from a file written by SaveWeights
func (n *Network) LoadWeights(name string) error {
	f, err := os.Open(filepath.Join(DataDir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	var params []LayerData
	if err = gob.NewDecoder(f).Decode(&params); err != nil {
		return fmt.Errorf("error decoding weights: %w", err)
	}
	return n.Import(params)
}

// Summary lists each layer with its output shape and number of parameters.
func (n *Network) Summary() []LayerSummary {
	var res []LayerSummary
	var walk func(prefix string, layers []Layer)
	walk = func(prefix string, layers []Layer) {
		for i, l := range layers {
			name := fmt.Sprintf("%s%d_%s", prefix, i, l.Type())
			s := LayerSummary{Name: name, OutShape: l.OutShape()}
			if p, ok := l.(ParamLayer); ok {
				s.Params = p.NumParams()
				if st, ok := l.(StatsLayer); ok {
					mean, variance := st.Stats()
					s.Params += mean.Size() + variance.Size()
				}
			}
			res = append(res, s)
			if b, ok := l.(BlockLayer); ok {
				walk(name+".", b.Sublayers())
			}
		}
	}
	walk("", n.Layers)
	return res
}

// Print network description
func (n *Network) String() string {
	s := make([]string, len(n.Layers))
	for i, layer := range n.Layers {
		s[i] = fmt.Sprintf("%2d: %-40s %v", i, layer.ToString(), layer.OutShape())
	}
	total, trainable := n.NumParams()
	return fmt.Sprintf("== Network ==\ninput %v\n%s\nparams: %d trainable: %d", n.inShape, strings.Join(s, "\n"), total, trainable)
}

// Print network weights
func (n *Network) PrintWeights() {
	for i, l := range n.ParamLayers() {
		W, B := l.Params()
		fmt.Printf("== Layer %d %s weights ==\n%s", i, l.Type(), W.String(n.queue))
		if B != nil {
			fmt.Print(B.String(n.queue))
		}
	}
}

// NewRand returns a random number generator with the given seed, or seeded from the time if seed <= 0
func NewRand(seed int64) *rand.Rand {
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	slog.Debug("random seed", "seed", seed)
	return rand.New(rand.NewSource(seed))
}

// Exit in case of error
func CheckErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
