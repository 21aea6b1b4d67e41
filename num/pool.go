package num

import (
	"fmt"
	"math"
)

// max or average pooling over size x size windows of each channel
type poolLayer struct {
	layerBase
	noParams
	convGeom
	average bool
	mask    []int32
}

func (d cpuDevice) PoolLayer(inShape []int, size, stride int, pad, average bool) Layer {
	if len(inShape) != 4 {
		panic(fmt.Sprintf("pool: expect 4 dimensional input, got %v", inShape))
	}
	if stride < 1 {
		stride = size
	}
	g := newConvGeom(inShape, inShape[3], size, stride, pad)
	l := &poolLayer{convGeom: g, average: average}
	name := "maxPool"
	if average {
		name = "avgPool"
	} else {
		l.mask = make([]int32, Prod(g.dims()))
	}
	l.layerBase = newLayerBase(d, name, inShape, g.dims())
	return l
}

func (l *poolLayer) fprop(threads int) {
	src, dst := l.src.Float32s(), l.dst.Float32s()
	c := l.ic
	parallel(threads, l.n, func(worker, start, end int) {
		for i := start; i < end; i++ {
			in := src[i*l.inSize() : (i+1)*l.inSize()]
			for oy := 0; oy < l.oh; oy++ {
				for ox := 0; ox < l.ow; ox++ {
					base := i*l.outSize() + (oy*l.ow+ox)*c
					o := dst[base : base+c]
					if l.average {
						clear32(o)
						count := 0
						l.taps(oy, ox, func(tap, pos int) {
							count++
							for ch, v := range in[pos*c : (pos+1)*c] {
								o[ch] += v
							}
						})
						for ch := range o {
							o[ch] /= float32(count)
						}
						continue
					}
					mask := l.mask[base : base+c]
					for ch := range o {
						o[ch] = -math.MaxFloat32
					}
					l.taps(oy, ox, func(tap, pos int) {
						for ch, v := range in[pos*c : (pos+1)*c] {
							if v > o[ch] {
								o[ch] = v
								mask[ch] = int32(pos*c + ch)
							}
						}
					})
				}
			}
		}
	})
}

func (l *poolLayer) bpropData(threads int) {
	dyAll, dxAll := l.diffDst.Float32s(), l.diffSrc.Float32s()
	c := l.ic
	parallel(threads, l.n, func(worker, start, end int) {
		for i := start; i < end; i++ {
			dx := dxAll[i*l.inSize() : (i+1)*l.inSize()]
			clear32(dx)
			for oy := 0; oy < l.oh; oy++ {
				for ox := 0; ox < l.ow; ox++ {
					base := i*l.outSize() + (oy*l.ow+ox)*c
					g := dyAll[base : base+c]
					if !l.average {
						for ch, ix := range l.mask[base : base+c] {
							dx[ix] += g[ch]
						}
						continue
					}
					count := 0
					l.taps(oy, ox, func(tap, pos int) { count++ })
					l.taps(oy, ox, func(tap, pos int) {
						d := dx[pos*c : (pos+1)*c]
						for ch, v := range g {
							d[ch] += v / float32(count)
						}
					})
				}
			}
		}
	})
}
