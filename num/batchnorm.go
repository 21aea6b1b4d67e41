package num

import (
	"fmt"
	"math"
)

// batch normalisation over all but the last (channel) dimension
type batchNormLayer struct {
	layerBase
	params
	channels int
	momentum float32
	epsilon  float32
	training bool
	runMean  Array
	runVar   Array
	xhat     []float32
	invStd   []float32
	mean     []float32
	variance []float32
}

func (d cpuDevice) BatchNormLayer(inShape []int, momentum, epsilon float64) BatchNormLayer {
	if len(inShape) < 2 {
		panic(fmt.Sprintf("batchNorm: expect at least 2 dimensional input, got %v", inShape))
	}
	c := inShape[len(inShape)-1]
	l := &batchNormLayer{
		channels: c,
		momentum: float32(momentum),
		epsilon:  float32(epsilon),
		training: true,
		runMean:  d.NewArray(Float32, c),
		runVar:   d.NewArray(Float32, c),
		xhat:     make([]float32, Prod(inShape)),
		invStd:   make([]float32, c),
		mean:     make([]float32, c),
		variance: make([]float32, c),
	}
	for i := range l.runVar.Float32s() {
		l.runVar.Float32s()[i] = 1
	}
	l.layerBase = newLayerBase(d, "batchNorm", inShape, inShape)
	l.filtShape = []int{c}
	l.biasShape = []int{c}
	return l
}

// SetTraining selects between batch statistics (training) and running statistics (inference).
func (l *batchNormLayer) SetTraining(on bool) { l.training = on }

// Stats returns the running mean and variance arrays.
func (l *batchNormLayer) Stats() (mean, variance Array) { return l.runMean, l.runVar }

func (l *batchNormLayer) fprop(threads int) {
	src, dst := l.src.Float32s(), l.dst.Float32s()
	gamma, beta := l.w.Float32s(), l.b.Float32s()
	c := l.channels
	if l.training {
		l.batchStats(src)
		rm, rv := l.runMean.Float32s(), l.runVar.Float32s()
		for ch := 0; ch < c; ch++ {
			rm[ch] = l.momentum*rm[ch] + (1-l.momentum)*l.mean[ch]
			rv[ch] = l.momentum*rv[ch] + (1-l.momentum)*l.variance[ch]
		}
	} else {
		copy(l.mean, l.runMean.Float32s())
		copy(l.variance, l.runVar.Float32s())
	}
	for ch := 0; ch < c; ch++ {
		l.invStd[ch] = float32(1 / math.Sqrt(float64(l.variance[ch]+l.epsilon)))
	}
	for i := 0; i < len(src); i += c {
		for ch, x := range src[i : i+c] {
			xh := (x - l.mean[ch]) * l.invStd[ch]
			l.xhat[i+ch] = xh
			dst[i+ch] = gamma[ch]*xh + beta[ch]
		}
	}
}

func (l *batchNormLayer) batchStats(src []float32) {
	c := l.channels
	m := float64(len(src) / c)
	sum := make([]float64, c)
	sum2 := make([]float64, c)
	for i := 0; i < len(src); i += c {
		for ch, x := range src[i : i+c] {
			sum[ch] += float64(x)
		}
	}
	for ch := range sum {
		l.mean[ch] = float32(sum[ch] / m)
	}
	for i := 0; i < len(src); i += c {
		for ch, x := range src[i : i+c] {
			d := float64(x - l.mean[ch])
			sum2[ch] += d * d
		}
	}
	for ch := range sum2 {
		l.variance[ch] = float32(sum2[ch] / m)
	}
}

// gradient wrt input, assumes fprop was called in training mode
func (l *batchNormLayer) bpropData(threads int) {
	dy, dx := l.diffDst.Float32s(), l.diffSrc.Float32s()
	gamma := l.w.Float32s()
	c := l.channels
	m := float32(len(dy) / c)
	sumDy := make([]float32, c)
	sumDyX := make([]float32, c)
	for i := 0; i < len(dy); i += c {
		for ch, g := range dy[i : i+c] {
			sumDy[ch] += g
			sumDyX[ch] += g * l.xhat[i+ch]
		}
	}
	for i := 0; i < len(dy); i += c {
		for ch, g := range dy[i : i+c] {
			dx[i+ch] = gamma[ch] * l.invStd[ch] / m * (m*g - sumDy[ch] - l.xhat[i+ch]*sumDyX[ch])
		}
	}
}

func (l *batchNormLayer) bpropFilter(threads int) {
	dy, dgamma := l.diffDst.Float32s(), l.dw.Float32s()
	c := l.channels
	clear32(dgamma)
	for i := 0; i < len(dy); i += c {
		for ch, g := range dy[i : i+c] {
			dgamma[ch] += g * l.xhat[i+ch]
		}
	}
}

func (l *batchNormLayer) bpropBias(threads int) {
	biasGrad(l.diffDst.Float32s(), l.db.Float32s(), l.channels)
}
