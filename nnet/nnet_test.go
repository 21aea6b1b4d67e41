package nnet

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
)

const (
	batch   = 4
	classes = 5
	delta   = 1e-3
)

func newTestNet(t *testing.T, inShape []int, layers ...ConfigLayer) *Network {
	t.Helper()
	q := num.NewDevice().NewQueue(2)
	conf := DefaultConfig().AddLayers(layers...)
	net := New(q, conf, batch, inShape, rand.New(rand.NewSource(42)))
	net.InitWeights()
	t.Cleanup(func() {
		net.Release()
		q.Shutdown()
	})
	return net
}

func randInput(q num.Queue, rng *rand.Rand, dims ...int) num.Array {
	x := q.NewArray(num.Float32, dims...)
	data := make([]float32, x.Size())
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	q.Call(num.Write(x, data))
	return x
}

func randLabels(q num.Queue, rng *rand.Rand) num.Array {
	y := q.NewArray(num.Int32, batch)
	labels := make([]int32, batch)
	for i := range labels {
		labels[i] = int32(rng.Intn(classes))
	}
	q.Call(num.Write(y, labels))
	return y
}

// mean cross entropy loss in training mode
func lossValue(net *Network, x, y num.Array) float64 {
	q := net.queue
	yPred := net.Fprop(x, true)
	pred := make([]float32, yPred.Size())
	labels := make([]int32, batch)
	q.Call(num.Read(yPred, pred), num.Read(y, labels)).Finish()
	var loss float64
	for i, label := range labels {
		p := math.Max(float64(pred[i*classes+int(label)]), num.LossEpsilon)
		loss -= math.Log(p)
	}
	return loss / batch
}

// compute the parameter gradients by back propagation
func backprop(net *Network, x, y num.Array) {
	q := net.queue
	yPred := net.Fprop(x, true)
	q.Call(
		num.Onehot(y, net.yOneHot, classes),
		num.Copy(net.inputGrad, yPred),
		num.Axpy(-1, net.yOneHot, net.inputGrad),
		num.Scale(1.0/batch, net.inputGrad),
	)
	net.Bprop(net.inputGrad)
	q.Finish()
}

func checkGradients(t *testing.T, net *Network) {
	q := net.queue
	rng := rand.New(rand.NewSource(1))
	x := randInput(q, rng, net.InShape()...)
	y := randLabels(q, rng)
	backprop(net, x, y)
	for ix, l := range net.ParamLayers() {
		W, B := l.Params()
		dW, dB := l.ParamGrads()
		arrays := [][2]num.Array{{W, dW}}
		if B != nil {
			arrays = append(arrays, [2]num.Array{B, dB})
		}
		for _, arr := range arrays {
			grad := append([]float32{}, arr[1].Float32s()...)
			w := arr[0].Float32s()
			for n := 0; n < 5; n++ {
				i := rng.Intn(len(w))
				w0 := w[i]
				w[i] = w0 + delta
				lossPlus := lossValue(net, x, y)
				w[i] = w0 - delta
				lossMinus := lossValue(net, x, y)
				w[i] = w0
				numeric := (lossPlus - lossMinus) / (2 * delta)
				assert.InDelta(t, numeric, float64(grad[i]), 5e-3+0.1*math.Abs(numeric),
					"layer %d %s param %v index %d", ix, l.Type(), arr[0].Dims(), i)
			}
		}
	}
}

func TestLinearFprop(t *testing.T) {
	q := num.NewDevice().NewQueue(1)
	defer q.Shutdown()
	l := &linear{Linear: Linear{Nout: 2}}
	l.Init(q, []int{2, 3}, nil)
	x := q.NewArray(num.Float32, 2, 3)
	q.Call(
		num.Write(x, []float32{1, 2, 3, 4, 5, 6}),
		num.Write(l.w, []float32{1, 0, 0, 1, 1, 1}),
		num.Write(l.b, []float32{0.5, -0.5}),
	)
	out := l.Fprop(q, x, false)
	res := make([]float32, 4)
	q.Call(num.Read(out, res)).Finish()
	assert.Equal(t, []float32{4.5, 4.5, 10.5, 10.5}, res)
	assert.Equal(t, []int{2, 2}, l.OutShape())
}

func TestConvGradients(t *testing.T) {
	net := newTestNet(t, []int{6, 6, 2},
		Conv{Nfeats: 3, Size: 3, Pad: true},
		BatchNorm{},
		Activation{Atype: "relu"},
		Pool{Size: 2},
		Flatten{},
		Linear{Nout: classes},
		Activation{Atype: "softmax"},
	)
	checkGradients(t, net)
}

func TestDepthwiseGradients(t *testing.T) {
	net := newTestNet(t, []int{5, 5, 3},
		DepthwiseConv{Size: 3, Stride: 2, Pad: true},
		BatchNorm{},
		Activation{Atype: "relu6"},
		Conv{Nfeats: 4, Size: 1, NoBias: true},
		Pool{Average: true, Global: true},
		Flatten{},
		Linear{Nout: classes},
		Activation{Atype: "softmax"},
	)
	checkGradients(t, net)
}

func TestResidualGradients(t *testing.T) {
	block := []ConfigLayer{
		Conv{Nfeats: 4, Size: 3, Stride: 2, Pad: true, NoBias: true},
		BatchNorm{},
		Activation{Atype: "relu"},
		Conv{Nfeats: 4, Size: 3, Pad: true, NoBias: true},
		BatchNorm{},
	}
	project := []ConfigLayer{
		Conv{Nfeats: 4, Size: 1, Stride: 2, Pad: true, NoBias: true},
		BatchNorm{},
	}
	net := newTestNet(t, []int{6, 6, 2},
		AddLayer(block, project),
		Activation{Atype: "relu"},
		AddLayer([]ConfigLayer{Conv{Nfeats: 4, Size: 3, Pad: true}}, nil),
		Flatten{},
		Linear{Nout: classes},
		Activation{Atype: "softmax"},
	)
	assert.Equal(t, []int{batch, 3, 3, 4}, net.Layers[0].OutShape())
	assert.Len(t, net.ParamLayers(), 8)
	checkGradients(t, net)
}

func TestAddShapeMismatch(t *testing.T) {
	q := num.NewDevice().NewQueue(1)
	defer q.Shutdown()
	l := AddLayer([]ConfigLayer{Conv{Nfeats: 8, Size: 3, Pad: true}}, nil).Marshal().Unmarshal()
	assert.Panics(t, func() { l.Init(q, []int{batch, 4, 4, 3}, rand.New(rand.NewSource(1))) })
}

func TestDropout(t *testing.T) {
	net := newTestNet(t, []int{100}, Dropout{Ratio: 0.5}, Linear{Nout: classes}, Activation{Atype: "softmax"})
	q := net.queue
	x := q.NewArray(num.Float32, batch, 100)
	q.Call(num.Fill(x, 1))
	drop := net.Layers[0]
	res := make([]float32, x.Size())
	q.Call(num.Read(drop.Fprop(q, x, true), res)).Finish()
	zeros := 0
	for _, v := range res {
		if v == 0 {
			zeros++
		} else {
			require.Equal(t, float32(2), v)
		}
	}
	assert.InDelta(t, 200, zeros, 60)
	assert.Same(t, x, drop.Fprop(q, x, false))
}

func TestSummary(t *testing.T) {
	net := newTestNet(t, []int{8, 8, 3},
		Conv{Nfeats: 4, Size: 3, Pad: true},
		BatchNorm{},
		Pool{Size: 2},
		Flatten{},
		Linear{Nout: classes},
		Activation{Atype: "softmax"},
	)
	sum := net.Summary()
	require.Len(t, sum, 6)
	assert.Equal(t, "0_conv", sum[0].Name)
	assert.Equal(t, 3*3*3*4+4, sum[0].Params)
	assert.Equal(t, 4*4, sum[1].Params)
	assert.Empty(t, cmp.Diff([]int{batch, 4, 4, 4}, sum[2].OutShape))
	total, trainable := net.NumParams()
	assert.Equal(t, 112+16+64*classes+classes, total)
	assert.Equal(t, total-8, trainable)
}

func TestExportImport(t *testing.T) {
	layers := []ConfigLayer{Conv{Nfeats: 2, Size: 3, Pad: true}, BatchNorm{}, Flatten{}, Linear{Nout: classes}, Activation{Atype: "softmax"}}
	net := newTestNet(t, []int{4, 4, 1}, layers...)
	params := net.Export()
	require.Len(t, params, 3)
	assert.Equal(t, "batchNorm", params[1].Type)
	assert.Len(t, params[1].Mean, 2)

	net.rng = rand.New(rand.NewSource(7))
	net.InitWeights()
	require.NotEmpty(t, cmp.Diff(params, net.Export()))
	require.NoError(t, net.Import(params))
	assert.Empty(t, cmp.Diff(params, net.Export()))

	other := newTestNet(t, []int{4, 4, 1}, Flatten{}, Linear{Nout: classes}, Activation{Atype: "softmax"})
	assert.Error(t, other.Import(params))
}

func TestSaveWeights(t *testing.T) {
	DataDir = t.TempDir()
	net := newTestNet(t, []int{3}, Linear{Nout: classes}, Activation{Atype: "softmax"})
	require.NoError(t, net.SaveWeights("test.wts"))
	params := net.Export()
	net.rng = rand.New(rand.NewSource(3))
	net.InitWeights()
	require.NoError(t, net.LoadWeights("test.wts"))
	assert.Empty(t, cmp.Diff(params, net.Export()))
}

// two gaussian clusters per class in 2d
func toyData(n int, rng *rand.Rand) Data {
	labels := make([]int32, n)
	inputs := make([]float32, 2*n)
	for i := range labels {
		label := rng.Intn(classes)
		angle := 2 * math.Pi * float64(label) / classes
		labels[i] = int32(label)
		inputs[2*i] = float32(3*math.Cos(angle) + 0.3*rng.NormFloat64())
		inputs[2*i+1] = float32(3*math.Sin(angle) + 0.3*rng.NormFloat64())
	}
	return NewData(classes, []int{2}, labels, inputs)
}

func TestTrainAdam(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	net := newTestNet(t, []int{2}, Linear{Nout: 16}, Activation{Atype: "relu"}, Linear{Nout: classes}, Activation{Atype: "softmax"})
	net.MaxEpoch = 20
	net.Eta = 0.01
	net.optimiser.SetEta(0.01)
	dev := net.queue.Dev()
	train := NewDataset(dev, toyData(400, rng), batch, 0, true, rng)
	valid := NewDataset(dev, toyData(101, rng), batch, 0, false, rng)
	defer train.Release()
	defer valid.Release()

	loss0, _ := net.Evaluate(valid, nil)
	tester := NewTestBase(valid, net.Callbacks()...)
	require.NoError(t, Train(context.Background(), net, train, tester))
	require.NotEmpty(t, tester.Stats)
	last := tester.Stats[len(tester.Stats)-1]
	t.Log(last)
	assert.Less(t, last.ValidLoss, loss0/2)
	assert.Greater(t, last.ValidAccuracy, 0.9)
	// 101 samples evaluated exactly including the final partial batch
	pred := make([]int32, 101)
	_, acc := net.Evaluate(valid, pred)
	errors := 0
	labels := make([]int32, 101)
	valid.Label(seq(101), labels)
	for i := range pred {
		if pred[i] != labels[i] {
			errors++
		}
	}
	assert.InDelta(t, 1-float64(errors)/101, acc, 1e-9)
}

func TestTrainCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	net := newTestNet(t, []int{2}, Linear{Nout: classes}, Activation{Atype: "softmax"})
	train := NewDataset(net.queue.Dev(), toyData(40, rng), batch, 0, true, rng)
	defer train.Release()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Train(ctx, net, train, NewTestBase(train))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEarlyStopping(t *testing.T) {
	net := newTestNet(t, []int{3}, Linear{Nout: classes}, Activation{Atype: "softmax"})
	cb := NewEarlyStopping(2, 0, true)
	var best []LayerData
	var stop bool
	for i, loss := range []float64{1.0, 0.8, 0.9, 0.85} {
		s := Stats{Epoch: i + 1, ValidLoss: loss}
		stop = cb.EpochEnd(net, &s)
		if i == 1 {
			best = net.Export()
		}
		if i < 3 {
			assert.False(t, stop, "epoch %d", i+1)
		}
		net.InitWeights()
	}
	assert.True(t, stop)
	assert.Equal(t, 2, cb.BestEpoch())
	cb.TrainEnd(net)
	assert.Empty(t, cmp.Diff(best, net.Export()))
}

func TestReduceLROnPlateau(t *testing.T) {
	net := newTestNet(t, []int{3}, Linear{Nout: classes}, Activation{Atype: "softmax"})
	opt := net.Optimiser()
	opt.SetEta(0.1)
	cb := NewReduceLROnPlateau(0.5, 2, 1, 0.02)
	expect := []float64{0.1, 0.1, 0.05, 0.05, 0.025, 0.025, 0.02, 0.02, 0.02}
	for i, want := range expect {
		s := Stats{Epoch: i + 1, ValidLoss: 1}
		assert.False(t, cb.EpochEnd(net, &s))
		assert.InDelta(t, want, opt.Eta(), 1e-12, "epoch %d", i+1)
	}
}

func TestDatasetBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	labels := make([]int32, 10)
	inputs := make([]float32, 10)
	for i := range labels {
		labels[i] = int32(i)
		inputs[i] = float32(i)
	}
	d := NewData(10, []int{1}, labels, inputs)
	dev := num.NewDevice()

	full := NewDataset(dev, d, 4, 0, true, rng)
	defer full.Release()
	assert.Equal(t, 2, full.Batches)
	assert.Equal(t, []int{4, 1}, full.BatchShape())

	partial := NewDataset(dev, d, 4, 0, false, rng)
	defer partial.Release()
	require.Equal(t, 3, partial.Batches)
	partial.Rewind()
	var seen []int32
	for i := 0; i < partial.Batches; i++ {
		_, y, n := partial.NextBatch()
		assert.Equal(t, []int{4, 4, 2}[i], n)
		seen = append(seen, y.Int32s()[:n]...)
	}
	assert.Equal(t, labels, seen)
	assert.Panics(t, func() { partial.NextBatch() })

	partial.Shuffle()
	partial.Rewind()
	seen = seen[:0]
	for i := 0; i < partial.Batches; i++ {
		x, y, n := partial.NextBatch()
		for j := 0; j < n; j++ {
			require.Equal(t, float32(y.Int32s()[j]), x.Float32s()[j])
		}
		seen = append(seen, y.Int32s()[:n]...)
	}
	assert.ElementsMatch(t, labels, seen)

	limited := NewDataset(dev, d, 0, 6, false, rng)
	defer limited.Release()
	assert.Equal(t, 6, limited.BatchSize)
	assert.Equal(t, 1, limited.Batches)
	for epoch := 0; epoch < 5; epoch++ {
		limited.Shuffle()
		limited.Rewind()
		_, y, n := limited.NextBatch()
		require.Equal(t, 6, n)
		assert.ElementsMatch(t, labels[:6], y.Int32s()[:n], "epoch %d", epoch)
	}
}

func TestConfig(t *testing.T) {
	DataDir = t.TempDir()
	conf := DefaultConfig().AddLayers(
		Conv{Nfeats: 8, Size: 3, Pad: true},
		BatchNorm{},
		AddLayer([]ConfigLayer{Conv{Nfeats: 8, Size: 3, Pad: true}}, nil),
		Pool{Size: 2},
		Flatten{},
		Dropout{Ratio: 0.5},
		Linear{Nout: 10},
		Activation{Atype: "softmax"},
	)
	require.NoError(t, conf.Save("test.net"))
	conf2, err := LoadConfig("test.net")
	require.NoError(t, err)
	assert.Equal(t, conf.String(), conf2.String())
	require.Len(t, conf2.Layers, len(conf.Layers))
	assert.Equal(t, "add [conv]", conf2.Layers[2].String())

	conf2, err = conf2.SetString("Eta", "0.01")
	require.NoError(t, err)
	assert.Equal(t, 0.01, conf2.Eta)
	conf2, err = conf2.SetString("StopAfter", "x")
	assert.Error(t, err)
	_, err = conf2.SetString("Missing", "1")
	assert.Error(t, err)
	conf2, err = conf2.SetBool("Nesterov", true)
	require.NoError(t, err)
	assert.True(t, conf2.Nesterov)
	assert.NotContains(t, conf2.Fields(), "Layers")

	var bn BatchNorm
	unmarshal(conf.Layers[1].Data, &bn)
	assert.Equal(t, BatchNorm{Momentum: 0.99, Epsilon: 1e-3}, bn)
}

func TestOptimiser(t *testing.T) {
	conf := DefaultConfig()
	conf.Optimiser = "rmsprop"
	_, err := NewOptimiser(conf)
	assert.Error(t, err)
	conf.Optimiser = "SGD"
	opt, err := NewOptimiser(conf)
	require.NoError(t, err)
	assert.IsType(t, &SGD{}, opt)
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}
