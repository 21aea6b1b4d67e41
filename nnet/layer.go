package nnet

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
)

// Layer interface type represents one layer of the neural net.
type Layer interface {
	Init(q num.Queue, inShape []int, rng *rand.Rand)
	InShape() []int
	OutShape() []int
	Fprop(q num.Queue, in num.Array, train bool) num.Array
	Bprop(q num.Queue, grad num.Array) num.Array
	Output() num.Array
	Type() string
	ToString() string
	Release()
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	Layer
	InitParams(q num.Queue, init InitType, rng *rand.Rand)
	Params() (W, B num.Array)
	ParamGrads() (dW, dB num.Array)
	SetParams(q num.Queue, W, B num.Array)
	UpdateParams(q num.Queue, opt Optimiser)
	NumParams() int
}

// StatsLayer is a layer with non-trainable running statistics, i.e. batch normalisation.
type StatsLayer interface {
	ParamLayer
	Stats() (mean, variance num.Array)
}

// OutputLayer is the final layer in the stack
type OutputLayer interface {
	Layer
	Loss(q num.Queue, labels, yPred num.Array) num.Array
}

// BlockLayer contains nested layers
type BlockLayer interface {
	Layer
	Sublayers() []Layer
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage `json:",omitempty"`
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() Layer {
	switch l.Type {
	case "conv":
		cfg := new(Conv)
		return cfg.unmarshal(l.Data)
	case "depthwise":
		cfg := new(DepthwiseConv)
		return cfg.unmarshal(l.Data)
	case "pool":
		cfg := new(Pool)
		return cfg.unmarshal(l.Data)
	case "batchNorm":
		cfg := new(BatchNorm)
		return cfg.unmarshal(l.Data)
	case "linear":
		cfg := new(Linear)
		return cfg.unmarshal(l.Data)
	case "activation":
		cfg := new(Activation)
		return cfg.unmarshal(l.Data)
	case "dropout":
		cfg := new(Dropout)
		return cfg.unmarshal(l.Data)
	case "add":
		cfg := new(Add)
		return cfg.unmarshal(l.Data)
	case "flatten":
		return &flatten{}
	default:
		panic("invalid layer type: " + l.Type)
	}
}

func (l LayerConfig) String() string {
	return l.Unmarshal().ToString()
}

// Convolutional layer, implements ParamLayer interface.
type Conv struct {
	Nfeats int
	Size   int
	Stride int
	Pad    bool
	NoBias bool
}

func (c Conv) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	return LayerConfig{Type: "conv", Data: marshal(c)}
}

func (c Conv) ToString() string {
	return fmt.Sprintf("conv %+v", c)
}

func (c *Conv) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &convDNN{Conv: *c}
}

// Depthwise convolution layer with one filter per input channel.
type DepthwiseConv struct {
	Size   int
	Stride int
	Pad    bool
	NoBias bool
}

func (c DepthwiseConv) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	return LayerConfig{Type: "depthwise", Data: marshal(c)}
}

func (c DepthwiseConv) ToString() string {
	return fmt.Sprintf("depthwise %+v", c)
}

func (c *DepthwiseConv) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &depthwiseDNN{DepthwiseConv: *c}
}

// Max or average pooling layer. If Global is set the pool size is the full input width and height.
type Pool struct {
	Size    int
	Stride  int
	Pad     bool
	Average bool
	Global  bool
}

func (c Pool) Marshal() LayerConfig {
	if c.Stride == 0 {
		c.Stride = c.Size
	}
	return LayerConfig{Type: "pool", Data: marshal(c)}
}

func (c Pool) ToString() string {
	return fmt.Sprintf("pool %+v", c)
}

func (c *Pool) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &poolDNN{Pool: *c}
}

// Batch normalisation layer, normalises each channel using the batch statistics when training
// and the running averages otherwise.
type BatchNorm struct {
	Momentum float64
	Epsilon  float64
}

func (c BatchNorm) Marshal() LayerConfig {
	if c.Momentum == 0 {
		c.Momentum = 0.99
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-3
	}
	return LayerConfig{Type: "batchNorm", Data: marshal(c)}
}

func (c BatchNorm) ToString() string {
	return fmt.Sprintf("batchNorm %+v", c)
}

func (c *BatchNorm) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &batchNorm{BatchNorm: *c}
}

// Linear fully connected layer, implements ParamLayer interface.
type Linear struct {
	Nout int
}

func (c Linear) Marshal() LayerConfig {
	return LayerConfig{Type: "linear", Data: marshal(c)}
}

func (c Linear) ToString() string {
	return fmt.Sprintf("linear %+v", c)
}

func (c *Linear) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &linear{Linear: *c}
}

// Relu, relu6 or softmax activation layer. Softmax implements the OutputLayer interface.
type Activation struct {
	Atype string
}

func (c Activation) Marshal() LayerConfig {
	return LayerConfig{Type: "activation", Data: marshal(c)}
}

func (c Activation) ToString() string {
	return fmt.Sprintf("activation %+v", c)
}

func (c *Activation) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	layer := &activation{Activation: *c}
	switch c.Atype {
	case "relu":
		layer.activ, layer.deriv = num.Relu, num.ReluD
	case "relu6":
		layer.activ, layer.deriv = num.Relu6, num.Relu6D
	case "softmax":
		return &softmax{Activation: *c}
	default:
		panic(fmt.Sprintf("activation type %s invalid", c.Atype))
	}
	return layer
}

// Dropout layer, zeros a fraction Ratio of the inputs while training.
type Dropout struct {
	Ratio float64
}

func (c Dropout) Marshal() LayerConfig {
	return LayerConfig{Type: "dropout", Data: marshal(c)}
}

func (c Dropout) ToString() string {
	return fmt.Sprintf("dropout %+v", c)
}

func (c *Dropout) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &dropout{Dropout: *c}
}

// Flatten layer reshapes from 4 to 2 dimensions.
type Flatten struct{}

func (c Flatten) Marshal() LayerConfig {
	return LayerConfig{Type: "flatten"}
}

// Add layer sums the output of the Block layers with the shortcut path. The shortcut is the
// identity if Project is empty, else the output of the Project layers.
type Add struct {
	Block   []LayerConfig
	Project []LayerConfig
}

// AddLayer creates a residual connection around the block layers.
func AddLayer(block, project []ConfigLayer) ConfigLayer {
	return Add{Block: marshalLayers(block), Project: marshalLayers(project)}
}

func (c Add) Marshal() LayerConfig {
	return LayerConfig{Type: "add", Data: marshal(c)}
}

func (c Add) ToString() string {
	s := make([]string, len(c.Block))
	for i, l := range c.Block {
		s[i] = l.Type
	}
	str := "add [" + strings.Join(s, " ") + "]"
	if len(c.Project) > 0 {
		s = make([]string, len(c.Project))
		for i, l := range c.Project {
			s[i] = l.Type
		}
		str += " + [" + strings.Join(s, " ") + "]"
	}
	return str
}

func (c *Add) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &addLayer{Add: *c}
}

// linear layer implementation: [batch, nin] x [nin, nout] + bias
type linear struct {
	Linear
	layerBase
	paramBase
	ones num.Array
}

func (l *linear) Type() string { return "linear" }

func (l *linear) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	if len(inShape) != 2 {
		panic(fmt.Sprintf("linear: expect 2 dimensional input, got %v", inShape))
	}
	nBatch, nIn := inShape[0], inShape[1]
	l.layerBase = newLayerBase(q, inShape, []int{nBatch, l.Nout})
	l.paramBase = newParams(q, []int{nIn, l.Nout}, []int{l.Nout}, nIn, l.Nout)
	l.ones = q.NewArray(num.Float32, nBatch)
	q.Call(num.Fill(l.ones, 1))
}

func (l *linear) Fprop(q num.Queue, in num.Array, train bool) num.Array {
	l.src = in
	q.Call(
		num.Copy(l.dst, l.b),
		num.Gemm(1, 1, l.src, l.w, l.dst, num.NoTrans, num.NoTrans),
	)
	return l.dst
}

func (l *linear) Bprop(q num.Queue, grad num.Array) num.Array {
	q.Call(
		num.Gemv(1, 0, grad, l.ones, l.db, num.Trans),
		num.Gemm(1, 0, l.src, grad, l.dw, num.Trans, num.NoTrans),
		num.Gemm(1, 0, grad, l.w, l.dsrc, num.NoTrans, num.Trans),
	)
	return l.dsrc
}

func (l *linear) Release() {
	l.layerBase.Release()
	l.paramBase.Release()
	num.Release(l.ones)
}

// convolutional layer implementation
type convDNN struct {
	Conv
	paramBase
	*layerDNN
}

func (l *convDNN) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	layer := q.ConvLayer(inShape, l.Nfeats, l.Size, l.Stride, l.Pad, l.NoBias)
	fanIn := l.Size * l.Size * inShape[3]
	l.paramBase = newParams(q, layer.FilterShape(), layer.BiasShape(), fanIn, l.Size*l.Size*l.Nfeats)
	layer.SetParams(l.w, l.b, l.dw, l.db)
	l.layerDNN = newLayerDNN(layer)
}

func (l *convDNN) Release() {
	l.layerDNN.Release()
	l.paramBase.Release()
}

// depthwise convolution implementation
type depthwiseDNN struct {
	DepthwiseConv
	paramBase
	*layerDNN
}

func (l *depthwiseDNN) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	layer := q.DepthwiseConvLayer(inShape, l.Size, l.Stride, l.Pad, l.NoBias)
	k := l.Size * l.Size
	l.paramBase = newParams(q, layer.FilterShape(), layer.BiasShape(), k*inShape[3], k)
	layer.SetParams(l.w, l.b, l.dw, l.db)
	l.layerDNN = newLayerDNN(layer)
}

func (l *depthwiseDNN) Release() {
	l.layerDNN.Release()
	l.paramBase.Release()
}

// pool layer implementation
type poolDNN struct {
	Pool
	*layerDNN
}

func (l *poolDNN) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	size, stride := l.Size, l.Stride
	if l.Global {
		if len(inShape) != 4 || inShape[1] != inShape[2] {
			panic(fmt.Sprintf("pool: global pooling requires square input, got %v", inShape))
		}
		size, stride = inShape[1], inShape[1]
	}
	l.layerDNN = newLayerDNN(q.PoolLayer(inShape, size, stride, l.Pad, l.Average))
}

// batch normalisation implementation: weights are the scale (gamma) and biases the offset (beta)
type batchNorm struct {
	BatchNorm
	paramBase
	*layerDNN
	bn num.BatchNormLayer
}

func (l *batchNorm) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	l.bn = q.BatchNormLayer(inShape, l.Momentum, l.Epsilon)
	l.paramBase = newParams(q, l.bn.FilterShape(), l.bn.BiasShape(), 0, 0)
	l.bn.SetParams(l.w, l.b, l.dw, l.db)
	l.layerDNN = newLayerDNN(l.bn)
}

func (l *batchNorm) InitParams(q num.Queue, init InitType, rng *rand.Rand) {
	mean, variance := l.bn.Stats()
	q.Call(
		num.Fill(l.w, 1),
		num.Fill(l.b, 0),
		num.Fill(mean, 0),
		num.Fill(variance, 1),
	)
	l.resetState(q)
}

func (l *batchNorm) Fprop(q num.Queue, in num.Array, train bool) num.Array {
	q.Call(num.SetTraining(l.bn, train))
	return l.layerDNN.Fprop(q, in, train)
}

func (l *batchNorm) Stats() (mean, variance num.Array) {
	return l.bn.Stats()
}

func (l *batchNorm) Release() {
	l.layerDNN.Release()
	l.paramBase.Release()
}

// relu activation layers
type activation struct {
	Activation
	layerBase
	activ func(x, y num.Array) num.Function
	deriv func(x, y, z num.Array) num.Function
}

func (l *activation) Type() string { return l.Atype }

func (l *activation) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	l.layerBase = newLayerBase(q, inShape, inShape)
}

func (l *activation) Fprop(q num.Queue, in num.Array, train bool) num.Array {
	l.src = in
	q.Call(l.activ(l.src, l.dst))
	return l.dst
}

func (l *activation) Bprop(q num.Queue, grad num.Array) num.Array {
	q.Call(l.deriv(l.src, grad, l.dsrc))
	return l.dsrc
}

// softmax output layer, the gradient passed to Bprop is with respect to the input logits
type softmax struct {
	Activation
	layerBase
	loss num.Array
}

func (l *softmax) Type() string { return "softmax" }

func (l *softmax) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	if len(inShape) != 2 {
		panic(fmt.Sprintf("softmax: expect 2 dimensional input, got %v", inShape))
	}
	l.layerBase = newLayerBase(q, inShape, inShape)
	l.loss = q.NewArray(num.Float32, inShape[0])
}

func (l *softmax) Fprop(q num.Queue, in num.Array, train bool) num.Array {
	l.src = in
	q.Call(num.Softmax(l.src, l.dst))
	return l.dst
}

func (l *softmax) Bprop(q num.Queue, grad num.Array) num.Array {
	q.Call(num.Copy(l.dsrc, grad))
	return l.dsrc
}

func (l *softmax) Loss(q num.Queue, labels, yPred num.Array) num.Array {
	q.Call(num.SoftmaxLoss(labels, yPred, l.loss))
	return l.loss
}

func (l *softmax) Release() {
	l.layerBase.Release()
	num.Release(l.loss)
}

// dropout layer is a no-op unless training
type dropout struct {
	Dropout
	layerBase
	mask num.Array
	rng  *rand.Rand
}

func (l *dropout) Type() string { return "dropout" }

func (l *dropout) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	l.layerBase = newLayerBase(q, inShape, inShape)
	l.mask = q.NewArray(num.Float32, inShape...)
	l.rng = rand.New(rand.NewSource(rng.Int63()))
}

func (l *dropout) Fprop(q num.Queue, in num.Array, train bool) num.Array {
	l.src = in
	if !train || l.Ratio == 0 {
		q.Call(num.Fill(l.mask, 1))
		return in
	}
	q.Call(num.Dropout(l.src, l.dst, l.mask, float32(l.Ratio), l.rng))
	return l.dst
}

func (l *dropout) Bprop(q num.Queue, grad num.Array) num.Array {
	q.Call(num.Mul(grad, l.mask, l.dsrc))
	return l.dsrc
}

func (l *dropout) Release() {
	l.layerBase.Release()
	num.Release(l.mask)
}

// flatten reshapes [batch, h, w, c] to [batch, h*w*c] without copying
type flatten struct {
	layerBase
}

func (l *flatten) Type() string { return "flatten" }

func (l *flatten) ToString() string { return "flatten" }

func (l *flatten) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	l.inShape = inShape
	l.outShape = []int{inShape[0], num.Prod(inShape[1:])}
}

func (l *flatten) Fprop(q num.Queue, in num.Array, train bool) num.Array {
	l.src = in
	l.dst = in.Reshape(l.outShape...)
	return l.dst
}

func (l *flatten) Bprop(q num.Queue, grad num.Array) num.Array {
	l.dsrc = grad.Reshape(l.inShape...)
	return l.dsrc
}

func (l *flatten) Release() {}

// residual add layer implementation
type addLayer struct {
	Add
	layerBase
	block   []Layer
	project []Layer
}

func (l *addLayer) Type() string { return "add" }

func (l *addLayer) Init(q num.Queue, inShape []int, rng *rand.Rand) {
	if len(l.Block) == 0 {
		panic("add: block must contain at least one layer")
	}
	var blockShape, projShape []int
	l.block, blockShape = initLayers(q, l.Block, inShape, rng)
	l.project, projShape = initLayers(q, l.Project, inShape, rng)
	if !num.SameShape(blockShape, projShape) {
		panic(fmt.Sprintf("add: block output %v does not match shortcut %v", blockShape, projShape))
	}
	l.layerBase = newLayerBase(q, inShape, blockShape)
}

func (l *addLayer) Sublayers() []Layer {
	return append(append([]Layer{}, l.block...), l.project...)
}

func (l *addLayer) Fprop(q num.Queue, in num.Array, train bool) num.Array {
	l.src = in
	x1 := fpropLayers(q, l.block, in, train)
	x2 := fpropLayers(q, l.project, in, train)
	q.Call(
		num.Copy(l.dst, x1),
		num.Axpy(1, x2, l.dst),
	)
	return l.dst
}

func (l *addLayer) Bprop(q num.Queue, grad num.Array) num.Array {
	g1 := bpropLayers(q, l.block, grad)
	g2 := bpropLayers(q, l.project, grad)
	q.Call(
		num.Copy(l.dsrc, g1),
		num.Axpy(1, g2, l.dsrc),
	)
	return l.dsrc
}

func (l *addLayer) Release() {
	l.layerBase.Release()
	for _, layer := range l.Sublayers() {
		layer.Release()
	}
}

// construct and initialise a sequence of layers, returns the layers and the final output shape
func initLayers(q num.Queue, configs []LayerConfig, inShape []int, rng *rand.Rand) ([]Layer, []int) {
	layers := make([]Layer, len(configs))
	shape := inShape
	for i, cfg := range configs {
		layers[i] = cfg.Unmarshal()
		layers[i].Init(q, shape, rng)
		shape = layers[i].OutShape()
	}
	return layers, shape
}

func fpropLayers(q num.Queue, layers []Layer, in num.Array, train bool) num.Array {
	for _, layer := range layers {
		in = layer.Fprop(q, in, train)
	}
	return in
}

func bpropLayers(q num.Queue, layers []Layer, grad num.Array) num.Array {
	for i := len(layers) - 1; i >= 0; i-- {
		grad = layers[i].Bprop(q, grad)
	}
	return grad
}

// base layer type
type layerBase struct {
	inShape  []int
	outShape []int
	src      num.Array
	dst      num.Array
	dsrc     num.Array
}

func newLayerBase(q num.Queue, inShape, outShape []int) layerBase {
	return layerBase{
		inShape:  inShape,
		outShape: outShape,
		dst:      q.NewArray(num.Float32, outShape...),
		dsrc:     q.NewArray(num.Float32, inShape...),
	}
}

func (l *layerBase) InShape() []int { return l.inShape }

func (l *layerBase) OutShape() []int { return l.outShape }

func (l *layerBase) Output() num.Array { return l.dst }

func (l *layerBase) Release() {
	num.Release(l.dst, l.dsrc)
}

// wrapper for layers which implement the num.Layer interface
type layerDNN struct {
	layer num.Layer
}

func newLayerDNN(layer num.Layer) *layerDNN {
	return &layerDNN{layer: layer}
}

func (l *layerDNN) Type() string { return l.layer.Type() }

func (l *layerDNN) InShape() []int { return l.layer.InShape() }

func (l *layerDNN) OutShape() []int { return l.layer.OutShape() }

func (l *layerDNN) Output() num.Array { return l.layer.Dst() }

func (l *layerDNN) Fprop(q num.Queue, in num.Array, train bool) num.Array {
	l.layer.SetSrc(in)
	q.Call(num.Fprop(l.layer))
	return l.layer.Dst()
}

func (l *layerDNN) Bprop(q num.Queue, grad num.Array) num.Array {
	l.layer.SetDiffDst(grad)
	q.Call(num.BpropData(l.layer))
	if l.layer.HasParams() {
		q.Call(
			num.BpropFilter(l.layer),
			num.BpropBias(l.layer),
		)
	}
	return l.layer.DiffSrc()
}

func (l *layerDNN) Release() {
	num.Release(l.layer.Dst(), l.layer.DiffSrc())
}

// weight and bias parameters with optimiser state
type paramBase struct {
	w, b          num.Array
	dw, db        num.Array
	wState        []num.Array
	bState        []num.Array
	fanIn, fanOut int
}

func newParams(q num.Queue, wShape, bShape []int, fanIn, fanOut int) paramBase {
	p := paramBase{
		w:      q.NewArray(num.Float32, wShape...),
		dw:     q.NewArray(num.Float32, wShape...),
		fanIn:  fanIn,
		fanOut: fanOut,
	}
	if bShape != nil {
		p.b = q.NewArray(num.Float32, bShape...)
		p.db = q.NewArray(num.Float32, bShape...)
	}
	return p
}

func (p *paramBase) Params() (W, B num.Array) {
	return p.w, p.b
}

func (p *paramBase) ParamGrads() (dW, dB num.Array) {
	return p.dw, p.db
}

func (p *paramBase) NumParams() int {
	n := p.w.Size()
	if p.b != nil {
		n += p.b.Size()
	}
	return n
}

// Glorot uniform samples from [-limit, limit] with limit = sqrt(6 / (fanIn + fanOut)), He normal from
// a normal distribution with stddev sqrt(2 / fanIn) truncated at 2 standard deviations. Biases are zero.
func (p *paramBase) InitParams(q num.Queue, init InitType, rng *rand.Rand) {
	weights := make([]float32, p.w.Size())
	switch init {
	case GlorotUniform:
		limit := math.Sqrt(6 / float64(p.fanIn+p.fanOut))
		for i := range weights {
			weights[i] = float32(limit * (2*rng.Float64() - 1))
		}
	case HeNormal:
		std := math.Sqrt(2 / float64(p.fanIn))
		for i := range weights {
			x := rng.NormFloat64()
			for math.Abs(x) > 2 {
				x = rng.NormFloat64()
			}
			weights[i] = float32(x * std)
		}
	default:
		panic(fmt.Sprintf("invalid weight init type %v", init))
	}
	q.Call(num.Write(p.w, weights))
	if p.b != nil {
		q.Call(num.Fill(p.b, 0))
	}
	p.resetState(q)
}

func (p *paramBase) SetParams(q num.Queue, W, B num.Array) {
	q.Call(num.Copy(p.w, W))
	if p.b != nil && B != nil {
		q.Call(num.Copy(p.b, B))
	}
}

// UpdateParams applies the optimiser step using the gradients from the last backward pass.
func (p *paramBase) UpdateParams(q num.Queue, opt Optimiser) {
	if p.wState == nil {
		p.wState = newState(q, p.w, opt.StateSize())
		if p.b != nil {
			p.bState = newState(q, p.b, opt.StateSize())
		}
	}
	q.Call(opt.Update(p.w, p.dw, p.wState))
	if p.b != nil {
		q.Call(opt.Update(p.b, p.db, p.bState))
	}
}

func (p *paramBase) resetState(q num.Queue) {
	for _, a := range append(append([]num.Array{}, p.wState...), p.bState...) {
		q.Call(num.Fill(a, 0))
	}
}

func (p *paramBase) Release() {
	num.Release(p.w, p.b, p.dw, p.db)
	num.Release(p.wState...)
	num.Release(p.bState...)
}

func newState(q num.Queue, a num.Array, n int) []num.Array {
	state := make([]num.Array, n)
	for i := range state {
		state[i] = q.NewArrayLike(a)
	}
	return state
}

func marshalLayers(layers []ConfigLayer) []LayerConfig {
	res := make([]LayerConfig, len(layers))
	for i, l := range layers {
		res[i] = l.Marshal()
	}
	return res
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data json.RawMessage, v interface{}) {
	err := json.Unmarshal(data, v)
	if err != nil {
		panic(err)
	}
}
