package num

import "fmt"

// Layer interface type represents a DNN layer whose forward and backward passes run as queued functions.
type Layer interface {
	Type() string
	Dst() Array
	DiffSrc() Array
	SetSrc(Array)
	SetDiffDst(Array)
	SetParams(W, B, dW, dB Array)
	HasParams() bool
	InShape() []int
	OutShape() []int
	FilterShape() []int
	BiasShape() []int
	fprop(threads int)
	bpropData(threads int)
	bpropFilter(threads int)
	bpropBias(threads int)
}

// BatchNormLayer additionally keeps the running mean and variance used for inference.
type BatchNormLayer interface {
	Layer
	SetTraining(on bool)
	Stats() (mean, variance Array)
}

// Forward propagation
func Fprop(layer Layer) Function {
	return args(layer.Type()+"_fprop", layer.fprop)
}

// Backward propagation of the gradient to the layer input
func BpropData(layer Layer) Function {
	return args(layer.Type()+"_bprop", layer.bpropData)
}

// Gradient with respect to the layer weights
func BpropFilter(layer Layer) Function {
	return args(layer.Type()+"_bprop_filter", layer.bpropFilter)
}

// Gradient with respect to the layer bias
func BpropBias(layer Layer) Function {
	return args(layer.Type()+"_bprop_bias", layer.bpropBias)
}

// Select training or inference mode for a batch normalisation layer
func SetTraining(layer BatchNormLayer, on bool) Function {
	return args(layer.Type()+"_mode", func(int) { layer.SetTraining(on) })
}

// common layer fields
type layerBase struct {
	name     string
	inShape  []int
	outShape []int
	src      Array
	dst      Array
	diffSrc  Array
	diffDst  Array
}

func newLayerBase(d cpuDevice, name string, inShape, outShape []int) layerBase {
	return layerBase{
		name:     name,
		inShape:  inShape,
		outShape: outShape,
		dst:      d.NewArray(Float32, outShape...),
		diffSrc:  d.NewArray(Float32, inShape...),
	}
}

func (l *layerBase) Type() string { return l.name }

func (l *layerBase) InShape() []int { return l.inShape }

func (l *layerBase) OutShape() []int { return l.outShape }

func (l *layerBase) Dst() Array { return l.dst }

func (l *layerBase) DiffSrc() Array { return l.diffSrc }

func (l *layerBase) SetSrc(a Array) {
	if a.Size() != Prod(l.inShape) {
		panic(fmt.Sprintf("%s: input shape %v does not match %v", l.name, a.Dims(), l.inShape))
	}
	l.src = a
}

func (l *layerBase) SetDiffDst(a Array) {
	if a.Size() != Prod(l.outShape) {
		panic(fmt.Sprintf("%s: gradient shape %v does not match %v", l.name, a.Dims(), l.outShape))
	}
	l.diffDst = a
}

func (l *layerBase) bpropFilter(threads int) {}

func (l *layerBase) bpropBias(threads int) {}

// layer without weights
type noParams struct{}

func (noParams) SetParams(W, B, dW, dB Array) { panic("SetParams: layer has no parameters") }

func (noParams) HasParams() bool { return false }

func (noParams) FilterShape() []int { return nil }

func (noParams) BiasShape() []int { return nil }

// weight and bias parameters
type params struct {
	w, b      Array
	dw, db    Array
	filtShape []int
	biasShape []int
	noBias    bool
}

func (p *params) SetParams(W, B, dW, dB Array) {
	if W.Size() != Prod(p.filtShape) || dW.Size() != Prod(p.filtShape) {
		panic(fmt.Sprintf("SetParams: weights should have shape %v", p.filtShape))
	}
	if B != nil && (B.Size() != Prod(p.biasShape) || dB.Size() != Prod(p.biasShape)) {
		panic(fmt.Sprintf("SetParams: bias should have shape %v", p.biasShape))
	}
	p.w, p.b, p.dw, p.db = W, B, dW, dB
}

func (p *params) HasParams() bool { return true }

func (p *params) FilterShape() []int { return p.filtShape }

func (p *params) BiasShape() []int { return p.biasShape }

// output size and padding before the first element
func outSize(x, size, stride int, pad bool) (out, before int) {
	if pad {
		out = (x + stride - 1) / stride
		total := max((out-1)*stride+size-x, 0)
		return out, total / 2
	}
	out = (x-size)/stride + 1
	if out < 1 {
		panic(fmt.Sprintf("filter size %d too large for input size %d", size, x))
	}
	return out, 0
}
