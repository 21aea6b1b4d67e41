package num

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArray(t *testing.T) {
	xd := []float32{1, 1, 2, 2, 3, 3}
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 6)
	if typ := x.Dtype(); typ != Float32 {
		t.Error("dtype invalid: got", typ)
	}
	x = x.Reshape(2, 3)
	if dim := x.Dims(); !reflect.DeepEqual(dim, []int{2, 3}) {
		t.Error("dims invalid: got", dim)
	}
	res := make([]float32, 6)
	q.Call(
		Write(x, xd),
		Read(x, res),
	).Finish()
	if !reflect.DeepEqual(res, xd) {
		t.Error("got", res, "expect", xd)
	}
	// reshape shares the same data
	y := x.Reshape(3, 2)
	y.Float32s()[5] = 9
	if x.Float32s()[5] != 9 {
		t.Error("reshape should not copy data")
	}
	assert.Panics(t, func() { x.Reshape(4, 2) })
	assert.Panics(t, func() { x.Int32s() })
	assert.Equal(t, 24, Bytes(x))
	t.Logf("x\n%s", x.String(q))
}

func TestCopy(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 2, 3)
	// tile bias vector along each row
	y := dev.NewArray(Float32, 3)
	res := make([]float32, 6)
	q.Call(
		Write(y, []float32{3, 2, 1}),
		Copy(x, y),
		Read(x, res),
	).Finish()
	expect := []float32{3, 2, 1, 3, 2, 1}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
	z := dev.NewArray(Float32, 2, 3)
	q.Call(
		Write(z, []float32{1, 2, 3, 4, 5, 6}),
		Copy(x, z),
		Read(x, res),
	).Finish()
	expect = []float32{1, 2, 3, 4, 5, 6}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
	assert.Panics(t, func() { Copy(x, dev.NewArray(Float32, 2)) })
	assert.Panics(t, func() { Copy(x, dev.NewArray(Int32, 2, 3)) })
}

func TestOnehot(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	y := dev.NewArray(Int32, 4)
	y1h := dev.NewArray(Float32, 4, 3)
	res := make([]float32, 12)
	vec := []int32{2, 1, 0, 2}
	q.Call(
		Write(y, vec),
		Onehot(y, y1h, 3),
		Read(y1h, res),
	).Finish()
	t.Logf("y1hot %s\n%s", y.String(q), y1h.String(q))
	expect := []float32{0, 0, 1, 0, 1, 0, 1, 0, 0, 0, 0, 1}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
	res2 := make([]int32, 4)
	q.Call(
		Unhot(y1h, y),
		Read(y, res2),
	).Finish()
	if !reflect.DeepEqual(res2, vec) {
		t.Error("got", res2, "expect", vec)
	}
	diff := dev.NewArray(Int32, 4)
	pred := dev.NewArray(Int32, 4)
	q.Call(
		Write(pred, []int32{2, 0, 0, 1}),
		Neq(pred, y, diff),
	).Finish()
	assert.Equal(t, []int32{0, 1, 0, 1}, diff.Int32s())
	assert.Panics(t, func() { Onehot(y, y1h, 4) })
}

func TestTranspose(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 2, 3)
	y := dev.NewArray(Float32, 3, 2)
	res1 := make([]float32, 6)
	q.Call(
		Write(x, []float32{1, 1, 2, 2, 3, 3}),
		Transpose(x, y),
		Read(y, res1),
	).Finish()
	t.Logf("x\n%v", x.String(q))
	t.Logf("y\n%v", y.String(q))
	xT := []float32{1, 2, 1, 3, 2, 3}
	if !reflect.DeepEqual(res1, xT) {
		t.Error("got", res1, "expect", xT)
	}
}

func TestAxpy(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 2, 3)
	y := dev.NewArray(Float32, 2, 3)
	res := make([]float32, 6)
	q.Call(
		Write(x, []float32{1, 1, 2, 2, 3, 3}),
		Write(y, []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}),
		Axpy(2, x, y),
		Scale(2, y),
		Read(y, res),
	).Finish()
	expect := []float32{5, 5, 9, 9, 13, 13}
	if !reflect.DeepEqual(res, expect) {
		t.Error("got", res, "expect", expect)
	}
	z := dev.NewArray(Float32, 2, 3)
	q.Call(Mul(x, y, z), Read(z, res)).Finish()
	assert.Equal(t, []float32{5, 5, 18, 18, 39, 39}, res)
}

func TestSum(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 2, 3)
	sum := dev.NewArray(Float32)
	res := make([]float32, 1)
	q.Call(
		Write(x, []float32{1, 2, 3, 4, 5, 6}),
		Sum(x, sum, 0.5),
		Read(sum, res),
	).Finish()
	if res[0] != 10.5 {
		t.Error("got", res[0], "expect", 10.5)
	}
	y := dev.NewArray(Int32, 4)
	q.Call(
		Write(y, []int32{1, 0, 1, 1}),
		Sum(y, sum, 1),
		Read(sum, res),
	).Finish()
	if res[0] != 3 {
		t.Error("got", res[0], "expect", 3)
	}
}

func TestGemm(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 2, 3)
	y := dev.NewArray(Float32, 3, 2)
	z := dev.NewArray(Float32, 2, 2)
	q.Call(Write(x, []float32{1, 2, 3, 4, 5, 6}))
	res := make([]float32, 4)
	for _, trans := range []TransType{NoTrans, Trans} {
		if trans == Trans {
			y = y.Reshape(2, 3)
			q.Call(Write(y, []float32{7, 9, 11, 8, 10, 12}))
		} else {
			q.Call(Write(y, []float32{7, 8, 9, 10, 11, 12}))
		}
		q.Call(
			Gemm(1, 0, x, y, z, NoTrans, trans),
			Read(z, res),
		).Finish()
		expect := []float32{58, 64, 139, 154}
		if !reflect.DeepEqual(res, expect) {
			t.Error("got", res, "expect", expect)
		}
	}
	v := dev.NewArray(Float32, 3)
	w := dev.NewArray(Float32, 2)
	q.Call(
		Write(v, []float32{1, 0, -1}),
		Gemv(1, 0, x, v, w, NoTrans),
		Read(w, res[:2]),
	).Finish()
	assert.Equal(t, []float32{-2, -2}, res[:2])
}

func TestActivation(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 5)
	y := dev.NewArray(Float32, 5)
	g := dev.NewArray(Float32, 5)
	dx := dev.NewArray(Float32, 5)
	q.Call(
		Write(x, []float32{-1, 0.5, 3, 7, -0.1}),
		Fill(g, 1),
		Relu(x, y),
	).Finish()
	assert.Equal(t, []float32{0, 0.5, 3, 7, 0}, y.Float32s())
	q.Call(ReluD(x, g, dx)).Finish()
	assert.Equal(t, []float32{0, 1, 1, 1, 0}, dx.Float32s())
	q.Call(Relu6(x, y), Relu6D(x, g, dx)).Finish()
	assert.Equal(t, []float32{0, 0.5, 3, 6, 0}, y.Float32s())
	assert.Equal(t, []float32{0, 1, 1, 0, 0}, dx.Float32s())
}

func TestSoftmax(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 2, 3)
	y := dev.NewArray(Float32, 2, 3)
	labels := dev.NewArray(Int32, 2)
	loss := dev.NewArray(Float32, 2)
	q.Call(
		Write(x, []float32{1, 2, 3, 1000, 1000, 0}),
		Write(labels, []int32{2, 2}),
		Softmax(x, y),
		SoftmaxLoss(labels, y, loss),
	).Finish()
	p := y.Float32s()
	e := []float64{math.Exp(-2), math.Exp(-1), 1}
	total := e[0] + e[1] + e[2]
	for i := range e {
		assert.InDelta(t, e[i]/total, p[i], 1e-6)
	}
	assert.InDelta(t, 0.5, p[3], 1e-6)
	assert.InDelta(t, 0.5, p[4], 1e-6)
	assert.InDelta(t, -math.Log(e[2]/total), loss.Float32s()[0], 1e-5)
	assert.InDelta(t, -math.Log(LossEpsilon), loss.Float32s()[1], 1e-3)
}

func TestDropout(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	x := dev.NewArray(Float32, 1000)
	y := dev.NewArray(Float32, 1000)
	mask := dev.NewArray(Float32, 1000)
	rng := rand.New(rand.NewSource(1))
	q.Call(
		Fill(x, 3),
		Dropout(x, y, mask, 0.25, rng),
	).Finish()
	kept := 0
	for i, m := range mask.Float32s() {
		require.Contains(t, []float32{0, 4.0 / 3}, m)
		require.Equal(t, 3*m, y.Float32s()[i])
		if m > 0 {
			kept++
		}
	}
	assert.InDelta(t, 750, kept, 60)
	assert.Panics(t, func() { Dropout(x, y, mask, 1, rng) })
}

func TestOptimisers(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(1)
	w := dev.NewArray(Float32, 2)
	dw := dev.NewArray(Float32, 2)
	m := dev.NewArray(Float32, 2)
	v := dev.NewArray(Float32, 2)
	q.Call(
		Write(w, []float32{1, 1}),
		Write(dw, []float32{0.5, -2}),
		AdamUpdate(0.1, 0.9, 0.999, 1e-7, 1, w, dw, m, v),
	).Finish()
	// first Adam step moves each weight by eta in the direction of the negative gradient
	assert.InDeltaSlice(t, []float32{0.9, 1.1}, w.Float32s(), 1e-5)

	vel := dev.NewArray(Float32, 2)
	q.Call(
		Write(w, []float32{1, 1}),
		Fill(vel, 0),
		MomentumUpdate(0.1, 0.9, false, w, dw, vel),
		MomentumUpdate(0.1, 0.9, false, w, dw, vel),
	).Finish()
	assert.InDeltaSlice(t, []float32{1 - 0.05 - 0.095, 1 + 0.2 + 0.38}, w.Float32s(), 1e-5)
}

func TestProfile(t *testing.T) {
	dev := NewCPUDevice()
	q := dev.NewQueue(2)
	defer q.Shutdown()
	q.Profiling(true)
	x := dev.NewArray(Float32, 10)
	q.Call(Fill(x, 1), Scale(2, x)).Finish()
	prof := q.Profile()
	assert.Contains(t, prof, "fill")
	assert.Contains(t, prof, "scale")
}

func randSlice(n int) []float32 {
	res := make([]float32, n)
	for i := range res {
		res[i] = float32(rand.Intn(20))
	}
	return res
}

func BenchmarkGemm(b *testing.B) {
	size := 100
	dev := NewCPUDevice()
	q := dev.NewQueue(4)
	x := dev.NewArray(Float32, size, size)
	y := dev.NewArray(Float32, size, size)
	z := dev.NewArray(Float32, size, size)
	q.Call(
		Write(x, randSlice(size*size)),
		Write(y, randSlice(size*size)),
	).Finish()
	for i := 0; i < b.N; i++ {
		q.Call(Gemm(1, 0, x, y, z, NoTrans, NoTrans)).Finish()
	}
}
