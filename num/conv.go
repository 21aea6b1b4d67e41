package num

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// convolution geometry for input [n, ih, iw, ic] and output [n, oh, ow, oc]
type convGeom struct {
	n, ih, iw, ic   int
	oh, ow, oc      int
	size, stride    int
	padTop, padLeft int
}

func newConvGeom(inShape []int, nFeats, size, stride int, pad bool) convGeom {
	if len(inShape) != 4 {
		panic(fmt.Sprintf("convolution: expect 4 dimensional input, got %v", inShape))
	}
	if stride < 1 {
		stride = 1
	}
	g := convGeom{n: inShape[0], ih: inShape[1], iw: inShape[2], ic: inShape[3], oc: nFeats, size: size, stride: stride}
	g.oh, g.padTop = outSize(g.ih, size, stride, pad)
	g.ow, g.padLeft = outSize(g.iw, size, stride, pad)
	return g
}

func (g convGeom) dims() []int { return []int{g.n, g.oh, g.ow, g.oc} }

func (g convGeom) inSize() int { return g.ih * g.iw * g.ic }

func (g convGeom) outSize() int { return g.oh * g.ow * g.oc }

// call fn for each filter tap which lands inside the input image
func (g convGeom) taps(oy, ox int, fn func(tap, pos int)) {
	for ky := 0; ky < g.size; ky++ {
		iy := oy*g.stride - g.padTop + ky
		if iy < 0 || iy >= g.ih {
			continue
		}
		for kx := 0; kx < g.size; kx++ {
			ix := ox*g.stride - g.padLeft + kx
			if ix < 0 || ix >= g.iw {
				continue
			}
			fn(ky*g.size+kx, iy*g.iw+ix)
		}
	}
}

// sum gradient over all output positions for each channel
func biasGrad(dy, db []float32, channels int) {
	clear32(db)
	for i := 0; i < len(dy); i += channels {
		for ch, v := range dy[i : i+channels] {
			db[ch] += v
		}
	}
}

// convolution layer implemented by unrolling each input image and multiplying by the filter matrix
type convLayer struct {
	layerBase
	params
	convGeom
	cols  scratch
	grads scratch
}

func (d cpuDevice) ConvLayer(inShape []int, nFeats, size, stride int, pad, noBias bool) Layer {
	g := newConvGeom(inShape, nFeats, size, stride, pad)
	l := &convLayer{convGeom: g}
	l.layerBase = newLayerBase(d, "conv", inShape, g.dims())
	l.filtShape = []int{size * size * g.ic, nFeats}
	if !noBias {
		l.biasShape = []int{nFeats}
	}
	l.noBias = noBias
	return l
}

func (l *convLayer) im2col(in, col []float32) {
	kkc := l.size * l.size * l.ic
	clear32(col)
	for oy := 0; oy < l.oh; oy++ {
		for ox := 0; ox < l.ow; ox++ {
			row := col[(oy*l.ow+ox)*kkc:]
			l.taps(oy, ox, func(tap, pos int) {
				copy(row[tap*l.ic:(tap+1)*l.ic], in[pos*l.ic:])
			})
		}
	}
}

func (l *convLayer) col2im(col, out []float32) {
	kkc := l.size * l.size * l.ic
	clear32(out)
	for oy := 0; oy < l.oh; oy++ {
		for ox := 0; ox < l.ow; ox++ {
			row := col[(oy*l.ow+ox)*kkc:]
			l.taps(oy, ox, func(tap, pos int) {
				dst := out[pos*l.ic : (pos+1)*l.ic]
				for ch, v := range row[tap*l.ic : (tap+1)*l.ic] {
					dst[ch] += v
				}
			})
		}
	}
}

func (l *convLayer) fprop(threads int) {
	src, dst := l.src.Float32s(), l.dst.Float32s()
	rows, kkc := l.oh*l.ow, l.size*l.size*l.ic
	W := matrix(l.w.Float32s(), kkc, l.oc)
	l.cols.resize(threads, rows*kkc)
	parallel(threads, l.n, func(worker, start, end int) {
		col := l.cols.get(worker, rows*kkc)
		for i := start; i < end; i++ {
			out := dst[i*l.outSize() : (i+1)*l.outSize()]
			beta := float32(0)
			if !l.noBias {
				bias := l.b.Float32s()
				for j := 0; j < len(out); j += l.oc {
					copy(out[j:], bias)
				}
				beta = 1
			}
			l.im2col(src[i*l.inSize():(i+1)*l.inSize()], col)
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, matrix(col, rows, kkc), W, beta, matrix(out, rows, l.oc))
		}
	})
}

func (l *convLayer) bpropData(threads int) {
	dy, dx := l.diffDst.Float32s(), l.diffSrc.Float32s()
	rows, kkc := l.oh*l.ow, l.size*l.size*l.ic
	W := matrix(l.w.Float32s(), kkc, l.oc)
	l.cols.resize(threads, rows*kkc)
	parallel(threads, l.n, func(worker, start, end int) {
		col := l.cols.get(worker, rows*kkc)
		for i := start; i < end; i++ {
			grad := matrix(dy[i*l.outSize():], rows, l.oc)
			blas32.Gemm(blas.NoTrans, blas.Trans, 1, grad, W, 0, matrix(col, rows, kkc))
			l.col2im(col, dx[i*l.inSize():(i+1)*l.inSize()])
		}
	})
}

func (l *convLayer) bpropFilter(threads int) {
	src, dy := l.src.Float32s(), l.diffDst.Float32s()
	rows, kkc := l.oh*l.ow, l.size*l.size*l.ic
	workers := min(threads, l.n)
	l.cols.resize(workers, rows*kkc)
	l.grads.resize(workers, kkc*l.oc)
	for w := 0; w < workers; w++ {
		clear32(l.grads.get(w, kkc*l.oc))
	}
	parallel(workers, l.n, func(worker, start, end int) {
		col := l.cols.get(worker, rows*kkc)
		dw := matrix(l.grads.get(worker, kkc*l.oc), kkc, l.oc)
		for i := start; i < end; i++ {
			l.im2col(src[i*l.inSize():(i+1)*l.inSize()], col)
			blas32.Gemm(blas.Trans, blas.NoTrans, 1, matrix(col, rows, kkc), matrix(dy[i*l.outSize():], rows, l.oc), 1, dw)
		}
	})
	sumWorkers(l.dw.Float32s(), l.grads, workers)
}

func (l *convLayer) bpropBias(threads int) {
	if !l.noBias {
		biasGrad(l.diffDst.Float32s(), l.db.Float32s(), l.oc)
	}
}

// depthwise convolution with a channel multiplier of 1
type depthwiseLayer struct {
	layerBase
	params
	convGeom
	grads scratch
}

func (d cpuDevice) DepthwiseConvLayer(inShape []int, size, stride int, pad, noBias bool) Layer {
	if len(inShape) != 4 {
		panic(fmt.Sprintf("depthwise: expect 4 dimensional input, got %v", inShape))
	}
	g := newConvGeom(inShape, inShape[3], size, stride, pad)
	l := &depthwiseLayer{convGeom: g}
	l.layerBase = newLayerBase(d, "depthwise", inShape, g.dims())
	l.filtShape = []int{size * size, g.ic}
	if !noBias {
		l.biasShape = []int{g.ic}
	}
	l.noBias = noBias
	return l
}

func (l *depthwiseLayer) fprop(threads int) {
	src, dst, W := l.src.Float32s(), l.dst.Float32s(), l.w.Float32s()
	c := l.ic
	parallel(threads, l.n, func(worker, start, end int) {
		for i := start; i < end; i++ {
			in := src[i*l.inSize() : (i+1)*l.inSize()]
			out := dst[i*l.outSize() : (i+1)*l.outSize()]
			for oy := 0; oy < l.oh; oy++ {
				for ox := 0; ox < l.ow; ox++ {
					o := out[(oy*l.ow+ox)*c : (oy*l.ow+ox+1)*c]
					if l.noBias {
						clear32(o)
					} else {
						copy(o, l.b.Float32s())
					}
					l.taps(oy, ox, func(tap, pos int) {
						x, k := in[pos*c:(pos+1)*c], W[tap*c:(tap+1)*c]
						for ch := range o {
							o[ch] += x[ch] * k[ch]
						}
					})
				}
			}
		}
	})
}

func (l *depthwiseLayer) bpropData(threads int) {
	dyAll, dxAll, W := l.diffDst.Float32s(), l.diffSrc.Float32s(), l.w.Float32s()
	c := l.ic
	parallel(threads, l.n, func(worker, start, end int) {
		for i := start; i < end; i++ {
			dy := dyAll[i*l.outSize() : (i+1)*l.outSize()]
			dx := dxAll[i*l.inSize() : (i+1)*l.inSize()]
			clear32(dx)
			for oy := 0; oy < l.oh; oy++ {
				for ox := 0; ox < l.ow; ox++ {
					g := dy[(oy*l.ow+ox)*c : (oy*l.ow+ox+1)*c]
					l.taps(oy, ox, func(tap, pos int) {
						d, k := dx[pos*c:(pos+1)*c], W[tap*c:(tap+1)*c]
						for ch := range g {
							d[ch] += g[ch] * k[ch]
						}
					})
				}
			}
		}
	})
}

func (l *depthwiseLayer) bpropFilter(threads int) {
	src, dyAll := l.src.Float32s(), l.diffDst.Float32s()
	c, fsize := l.ic, l.size*l.size*l.ic
	workers := min(threads, l.n)
	l.grads.resize(workers, fsize)
	for w := 0; w < workers; w++ {
		clear32(l.grads.get(w, fsize))
	}
	parallel(workers, l.n, func(worker, start, end int) {
		dw := l.grads.get(worker, fsize)
		for i := start; i < end; i++ {
			in := src[i*l.inSize() : (i+1)*l.inSize()]
			dy := dyAll[i*l.outSize() : (i+1)*l.outSize()]
			for oy := 0; oy < l.oh; oy++ {
				for ox := 0; ox < l.ow; ox++ {
					g := dy[(oy*l.ow+ox)*c : (oy*l.ow+ox+1)*c]
					l.taps(oy, ox, func(tap, pos int) {
						x, d := in[pos*c:(pos+1)*c], dw[tap*c:(tap+1)*c]
						for ch := range g {
							d[ch] += g[ch] * x[ch]
						}
					})
				}
			}
		}
	})
	sumWorkers(l.dw.Float32s(), l.grads, workers)
}

func (l *depthwiseLayer) bpropBias(threads int) {
	if !l.noBias {
		biasGrad(l.diffDst.Float32s(), l.db.Float32s(), l.ic)
	}
}

// set dst to the sum of the per worker partial results
func sumWorkers(dst []float32, parts scratch, workers int) {
	copy(dst, parts.get(0, len(dst)))
	for w := 1; w < workers; w++ {
		for i, v := range parts.get(w, len(dst)) {
			dst[i] += v
		}
	}
}
