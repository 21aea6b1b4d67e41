package zoo

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
)

var inShape = []int{32, 32, 3}

func newNet(t *testing.T, conf nnet.Config, batch int, shape []int) *nnet.Network {
	t.Helper()
	q := num.NewDevice().NewQueue(4)
	net := nnet.New(q, conf, batch, shape, rand.New(rand.NewSource(1)))
	net.InitWeights()
	t.Cleanup(func() {
		net.Release()
		q.Shutdown()
	})
	return net
}

func TestResBlock(t *testing.T) {
	tests := []struct {
		nin, nout, stride int
		project           bool
		outShape          []int
	}{
		{64, 64, 1, false, []int{2, 8, 8, 64}},
		{64, 128, 2, true, []int{2, 4, 4, 128}},
		{64, 128, 1, true, []int{2, 8, 8, 128}},
		{64, 64, 2, true, []int{2, 4, 4, 64}},
	}
	for _, test := range tests {
		layers := ResBlock(test.nin, test.nout, test.stride)
		require.Len(t, layers, 2)
		add, ok := layers[0].(nnet.Add)
		require.True(t, ok)
		assert.Len(t, add.Block, 5)
		if test.project {
			require.Len(t, add.Project, 2)
			assert.Equal(t, "conv", add.Project[0].Type)
			assert.Equal(t, "batchNorm", add.Project[1].Type)
		} else {
			assert.Empty(t, add.Project)
		}
		conf := nnet.DefaultConfig().AddLayers(layers...)
		conf = conf.AddLayers(nnet.Flatten{}, nnet.Linear{Nout: Classes}, nnet.Activation{Atype: "softmax"})
		net := newNet(t, conf, 2, []int{8, 8, test.nin})
		if diff := cmp.Diff(test.outShape, net.Layers[0].OutShape()); diff != "" {
			t.Errorf("ResBlock(%d, %d, %d) shape mismatch (-want +got):\n%s", test.nin, test.nout, test.stride, diff)
		}
	}
}

func TestBuild(t *testing.T) {
	for _, name := range Names() {
		conf, err := Build(name)
		require.NoError(t, err)
		assert.NotEmpty(t, conf.Layers, name)
	}
	_, err := Build("vgg16")
	assert.ErrorContains(t, err, "unknown model")

	r, _ := Build("resnet18")
	m, _ := Build("mobilenet")
	c, _ := Build("cnn")
	assert.Equal(t, 0.5, r.DecayFactor)
	assert.Equal(t, 0.5, m.DecayFactor)
	assert.Zero(t, c.DecayFactor)
	assert.Len(t, c.Callbacks(), 1)
	assert.Len(t, r.Callbacks(), 2)
}

func TestModelOutput(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			batch := 64
			if testing.Short() {
				batch = 4
			}
			conf, err := Build(name)
			require.NoError(t, err)
			net := newNet(t, conf, batch, inShape)
			t.Logf("%s\n%s", name, net)
			assert.Equal(t, []int{batch, Classes}, net.OutShape())

			q := net.Queue()
			rng := rand.New(rand.NewSource(2))
			x := q.NewArray(num.Float32, append([]int{batch}, inShape...)...)
			data := make([]float32, x.Size())
			for i := range data {
				data[i] = float32(rng.NormFloat64())
			}
			q.Call(num.Write(x, data))
			yPred := net.Fprop(x, false)
			res := make([]float32, yPred.Size())
			q.Call(num.Read(yPred, res)).Finish()
			require.Equal(t, []int{batch, Classes}, yPred.Dims())
			for i := 0; i < batch; i++ {
				var sum float64
				for _, p := range res[i*Classes : (i+1)*Classes] {
					assert.True(t, p >= 0 && p <= 1)
					sum += float64(p)
				}
				assert.InDelta(t, 1, sum, 1e-4, "row %d", i)
			}
		})
	}
}

func TestParamCounts(t *testing.T) {
	net := newNet(t, CustomCNN(), 2, inShape)
	sum := net.Summary()
	assert.Equal(t, "0_conv", sum[0].Name)
	assert.Equal(t, 3*3*3*32, sum[0].Params)
	_, trainable := net.NumParams()
	// conv weights + batchnorm scale and offset + dense layers
	convs := 3*3*(3*32+32*32+32*64+64*64+64*128+128*128) + 2*2*(32+64+128)
	dense := 4*4*128*256 + 256 + 2*256 + 256*10 + 10
	assert.Equal(t, convs+dense, trainable)

	mobile := newNet(t, MobileNet(0.25), 2, inShape)
	assert.Equal(t, []int{2, 1, 1, 256}, mobile.Layers[len(mobile.Layers)-6].OutShape())
}
