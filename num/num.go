// Package num contains numeric Array processing routines such as optimised matix multiplication.
package num

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Data type of an element of the array
type DataType int

const (
	Int32 DataType = iota
	Float32
)

// TransType flag indicates if matrix is transposed
type TransType int

const (
	NoTrans TransType = iota
	Trans
)

func (t TransType) blas() blas.Transpose {
	if t == Trans {
		return blas.Trans
	}
	return blas.NoTrans
}

// Function which may be called via the queue
type Function struct {
	name string
	call func(threads int)
}

// Name of the function as shown in the profile
func (f Function) Name() string { return f.name }

func args(name string, call func(threads int)) Function {
	return Function{name: name, call: call}
}

// Read data from array into a slice.
func Read(a Array, data interface{}) Function {
	return args("read", func(int) {
		switch d := data.(type) {
		case []float32:
			checkLen("Read", a, len(d))
			copy(d, a.Float32s())
		case []int32:
			checkLen("Read", a, len(d))
			copy(d, a.Int32s())
		default:
			panic(fmt.Sprintf("Read: invalid type %T", data))
		}
	})
}

// Write data from a slice into the given array.
func Write(a Array, data interface{}) Function {
	return args("write", func(int) {
		switch d := data.(type) {
		case []float32:
			checkLen("Write", a, len(d))
			copy(a.Float32s(), d)
		case []int32:
			checkLen("Write", a, len(d))
			copy(a.Int32s(), d)
		default:
			panic(fmt.Sprintf("Write: invalid type %T", data))
		}
	})
}

func checkLen(name string, a Array, n int) {
	if n < a.Size() {
		panic(fmt.Sprintf("%s: slice length %d less than array size %d", name, n, a.Size()))
	}
}

// Fill array with a scalar value
func Fill(a Array, scalar float32) Function {
	return args("fill", func(int) {
		if a.Dtype() == Int32 {
			d := a.Int32s()
			for i := range d {
				d[i] = int32(scalar)
			}
			return
		}
		d := a.Float32s()
		for i := range d {
			d[i] = scalar
		}
	})
}

// Copy from src to dst, broadcast vector to matrix if needed, vector is tiled row wise
func Copy(dst, src Array) Function {
	if src.Dtype() != dst.Dtype() {
		panic("Copy: arguments must be same type")
	}
	ddim, sdim := dst.Dims(), src.Dims()
	switch {
	case SameShape(ddim, sdim) || (dst.Size() == src.Size() && len(sdim) <= 1):
		return args("copy", func(int) {
			if src.Dtype() == Int32 {
				copy(dst.Int32s(), src.Int32s())
			} else {
				copy(dst.Float32s(), src.Float32s())
			}
		})
	case len(sdim) == 1 && len(ddim) >= 2 && sdim[0] == ddim[len(ddim)-1]:
		return args("tile", func(int) {
			d, s := dst.Float32s(), src.Float32s()
			for i := 0; i < len(d); i += len(s) {
				copy(d[i:], s)
			}
		})
	default:
		panic(fmt.Sprintf("Copy: cannot copy from %v to %v shape", sdim, ddim))
	}
}

// Element wise != comparison
func Neq(x, y, res Array) Function {
	if x.Dtype() != Int32 || y.Dtype() != Int32 || res.Dtype() != Int32 {
		panic("Neq: incorrect datatype")
	}
	if !SameShape(x.Dims(), res.Dims()) || !SameShape(y.Dims(), res.Dims()) {
		panic("Neq: arrays must be same shape")
	}
	return args("neq", func(int) {
		xd, yd, rd := x.Int32s(), y.Int32s(), res.Int32s()
		for i := range rd {
			if xd[i] != yd[i] {
				rd[i] = 1
			} else {
				rd[i] = 0
			}
		}
	})
}

// Convert labels to one hot representation with shape [batch, classes]
func Onehot(x, y Array, classes int) Function {
	if x.Dtype() != Int32 || y.Dtype() != Float32 {
		panic("Onehot: incorrect datatype")
	}
	xdim, ydim := x.Dims(), y.Dims()
	if len(xdim) != 1 || len(ydim) != 2 || xdim[0] != ydim[0] || ydim[1] != classes {
		panic("Onehot: invalid array shape")
	}
	return args("onehot", func(int) {
		xd, yd := x.Int32s(), y.Float32s()
		for i := range yd {
			yd[i] = 0
		}
		for i, label := range xd {
			if label < 0 || int(label) >= classes {
				panic(fmt.Sprintf("Onehot: label %d out of range", label))
			}
			yd[i*classes+int(label)] = 1
		}
	})
}

// Convert from OneHot format back to labels by taking the index of the max value in each row
func Unhot(x, y Array) Function {
	if x.Dtype() != Float32 || y.Dtype() != Int32 {
		panic("Unhot: incorrect datatype")
	}
	xdim, ydim := x.Dims(), y.Dims()
	if len(xdim) != 2 || len(ydim) != 1 || xdim[0] != ydim[0] {
		panic("Unhot: invalid array shape")
	}
	return args("unhot", func(int) {
		xd, yd := x.Float32s(), y.Int32s()
		cols := xdim[1]
		for i := range yd {
			row := xd[i*cols : (i+1)*cols]
			best := 0
			for j, v := range row {
				if v > row[best] {
					best = j
				}
			}
			yd[i] = int32(best)
		}
	})
}

// Scale array: x <- alpha*x
func Scale(alpha float32, x Array) Function {
	if x.Dtype() != Float32 {
		panic("Scale: dtype must by Float32")
	}
	return args("scale", func(int) {
		blas32.Scal(alpha, vector(x))
	})
}

// Array addition and scaling: y <- alpha*x + y
func Axpy(alpha float32, x, y Array) Function {
	if x.Dtype() != Float32 || y.Dtype() != Float32 {
		panic("Axpy: dtype must by Float32")
	}
	if x.Size() != y.Size() {
		panic(fmt.Sprintf("Axpy: arrays must be same size: %v %v", x.Dims(), y.Dims()))
	}
	return args("axpy", func(int) {
		blas32.Axpy(alpha, vector(x), vector(y))
	})
}

// Element wise multiplication: z <- x * y
func Mul(x, y, z Array) Function {
	if x.Size() != z.Size() || y.Size() != z.Size() {
		panic("Mul: arrays must be same size")
	}
	return args("mul", func(int) {
		xd, yd, zd := x.Float32s(), y.Float32s(), z.Float32s()
		for i := range zd {
			zd[i] = xd[i] * yd[i]
		}
	})
}

// Transpose sets mB to a copy of mA with the data transposed.
func Transpose(mA, mB Array) Function {
	adim, bdim := mA.Dims(), mB.Dims()
	if len(adim) != 2 || len(bdim) != 2 {
		panic("Transpose: arrays must be 2D")
	}
	if adim[0] != bdim[1] || adim[1] != bdim[0] {
		panic("Transpose: destination matrix is wrong shape")
	}
	return args("trans", func(int) {
		a, b := mA.Float32s(), mB.Float32s()
		rows, cols := adim[0], adim[1]
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				b[j*rows+i] = a[i*cols+j]
			}
		}
	})
}

// Calculate the scalar sum of the values in the array. Multiplies each result by scale.
func Sum(a, total Array, scale float32) Function {
	if total.Size() != 1 || total.Dtype() != Float32 {
		panic("Sum: result type should be float32 scalar")
	}
	return args("sum", func(int) {
		var sum float64
		if a.Dtype() == Int32 {
			for _, v := range a.Int32s() {
				sum += float64(v)
			}
		} else {
			for _, v := range a.Float32s() {
				sum += float64(v)
			}
		}
		total.Float32s()[0] = float32(sum) * scale
	})
}

// Matrix vector multiplication: y <- alpha*dot(mA,x) + beta*y
func Gemv(alpha, beta float32, mA, x, y Array, aTrans TransType) Function {
	if mA.Dtype() != Float32 || x.Dtype() != Float32 || y.Dtype() != Float32 {
		panic("Gemv: dtype must by Float32")
	}
	adim, xdim, ydim := mA.Dims(), x.Dims(), y.Dims()
	if len(adim) != 2 || len(xdim) != 1 || len(ydim) != 1 {
		panic("Gemv: must have matrix and vector inputs")
	}
	m, n := adim[0], adim[1]
	if aTrans == Trans {
		if xdim[0] != m || ydim[0] != n {
			panic("Gemv: incorrect vector size")
		}
	} else {
		if xdim[0] != n || ydim[0] != m {
			panic("Gemv: incorrect vector size")
		}
	}
	return args("gemv", func(int) {
		blas32.Gemv(aTrans.blas(), alpha, general(mA), vector(x), beta, vector(y))
	})
}

// Matrix matrix multiplication: mC <- alpha*dot(mA, mB) + beta*mC
func Gemm(alpha, beta float32, mA, mB, mC Array, aTrans, bTrans TransType) Function {
	if mA.Dtype() != Float32 || mB.Dtype() != Float32 || mC.Dtype() != Float32 {
		panic("Gemm: dtype must by Float32")
	}
	adim, bdim, cdim := mA.Dims(), mB.Dims(), mC.Dims()
	if len(adim) != 2 || len(bdim) != 2 || len(cdim) != 2 {
		panic("Gemm: must have 2 dimensional arrays")
	}
	m, k := adim[0], adim[1]
	k2, n := bdim[0], bdim[1]
	if aTrans == Trans {
		m, k = k, m
	}
	if bTrans == Trans {
		k2, n = n, k2
	}
	if k2 != k {
		panic(fmt.Sprintf("Gemm: invalid input shape %v x %v", adim, bdim))
	}
	if cdim[0] != m || cdim[1] != n {
		panic(fmt.Sprintf("Gemm: invalid output shape %v expecting [%d %d]", cdim, m, n))
	}
	return args("gemm", func(int) {
		blas32.Gemm(aTrans.blas(), bTrans.blas(), alpha, general(mA), general(mB), beta, general(mC))
	})
}

// Relu rectified linear activation function: y = max(x, 0)
func Relu(x, y Array) Function {
	return unaryFunc("relu", x, y, func(x float32) float32 {
		if x > 0 {
			return x
		}
		return 0
	})
}

func ReluD(x, grad, y Array) Function {
	return binaryFunc("relu_d", x, grad, y, func(x, g float32) float32 {
		if x > 0 {
			return g
		}
		return 0
	})
}

// Relu6 activation function: y = min(max(x, 0), 6)
func Relu6(x, y Array) Function {
	return unaryFunc("relu6", x, y, func(x float32) float32 {
		if x <= 0 {
			return 0
		}
		if x >= 6 {
			return 6
		}
		return x
	})
}

func Relu6D(x, grad, y Array) Function {
	return binaryFunc("relu6_d", x, grad, y, func(x, g float32) float32 {
		if x > 0 && x < 6 {
			return g
		}
		return 0
	})
}

// Softmax activation function applied to each row of a [batch, classes] matrix
func Softmax(x, res Array) Function {
	if x.Dtype() != Float32 || res.Dtype() != Float32 {
		panic("Softmax: dtype must by Float32")
	}
	xdim, rdim := x.Dims(), res.Dims()
	if len(xdim) != 2 || !SameShape(xdim, rdim) {
		panic("Softmax: arrays must be 2d and same shape")
	}
	return args("softmax", func(int) {
		xd, rd := x.Float32s(), res.Float32s()
		cols := xdim[1]
		for i := 0; i < xdim[0]; i++ {
			in, out := xd[i*cols:(i+1)*cols], rd[i*cols:(i+1)*cols]
			xmax := in[0]
			for _, v := range in {
				if v > xmax {
					xmax = v
				}
			}
			var sum float64
			for j, v := range in {
				e := math.Exp(float64(v - xmax))
				out[j] = float32(e)
				sum += e
			}
			for j := range out {
				out[j] = float32(float64(out[j]) / sum)
			}
		}
	})
}

// Dropout sets y = x*mask where each mask element is 0 with probability ratio and 1/(1-ratio) otherwise.
// The mask is generated when the function is executed so it can be reused by the backward pass.
func Dropout(x, y, mask Array, ratio float32, rng *rand.Rand) Function {
	if x.Size() != y.Size() || x.Size() != mask.Size() {
		panic("Dropout: arrays must be same size")
	}
	if ratio < 0 || ratio >= 1 {
		panic(fmt.Sprintf("Dropout: invalid ratio %g", ratio))
	}
	return args("dropout", func(int) {
		xd, yd, md := x.Float32s(), y.Float32s(), mask.Float32s()
		scale := 1 / (1 - ratio)
		for i, v := range xd {
			if rng.Float32() < ratio {
				md[i] = 0
			} else {
				md[i] = scale
			}
			yd[i] = v * md[i]
		}
	})
}

// Minimum probability used when calculating the log loss
const LossEpsilon = 1e-7

// Sparse categorical cross entropy loss: res[i] = -log(pred[i, label[i]])
func SoftmaxLoss(labels, pred, res Array) Function {
	if labels.Dtype() != Int32 || pred.Dtype() != Float32 || res.Dtype() != Float32 {
		panic("SoftmaxLoss: incorrect datatype")
	}
	ldim, pdim, rdim := labels.Dims(), pred.Dims(), res.Dims()
	if len(pdim) != 2 || len(ldim) != 1 || !SameShape(ldim, rdim) || ldim[0] != pdim[0] {
		panic("SoftmaxLoss: invalid array shape")
	}
	return args("softmax_loss", func(int) {
		ld, pd, rd := labels.Int32s(), pred.Float32s(), res.Float32s()
		cols := pdim[1]
		for i, label := range ld {
			p := float64(pd[i*cols+int(label)])
			p = math.Min(math.Max(p, LossEpsilon), 1-LossEpsilon)
			rd[i] = float32(-math.Log(p))
		}
	})
}

// Adam optimiser update step t (starting from 1) for weights w with gradient dw and moment arrays m, v.
func AdamUpdate(eta, beta1, beta2, epsilon float32, t int, w, dw, m, v Array) Function {
	if w.Size() != dw.Size() || w.Size() != m.Size() || w.Size() != v.Size() {
		panic("AdamUpdate: arrays must be same size")
	}
	return args("adam", func(int) {
		b1t := 1 - math.Pow(float64(beta1), float64(t))
		b2t := 1 - math.Pow(float64(beta2), float64(t))
		lr := float32(float64(eta) * math.Sqrt(b2t) / b1t)
		wd, gd, md, vd := w.Float32s(), dw.Float32s(), m.Float32s(), v.Float32s()
		for i, g := range gd {
			md[i] = beta1*md[i] + (1-beta1)*g
			vd[i] = beta2*vd[i] + (1-beta2)*g*g
			wd[i] -= lr * md[i] / (float32(math.Sqrt(float64(vd[i]))) + epsilon)
		}
	})
}

// Stochastic gradient descent with momentum. If nesterov is set then uses Nesterov accelerated gradient.
func MomentumUpdate(eta, momentum float32, nesterov bool, w, dw, vel Array) Function {
	if w.Size() != dw.Size() || w.Size() != vel.Size() {
		panic("MomentumUpdate: arrays must be same size")
	}
	return args("momentum", func(int) {
		wd, gd, vd := w.Float32s(), dw.Float32s(), vel.Float32s()
		for i, g := range gd {
			vd[i] = momentum*vd[i] - eta*g
			if nesterov {
				wd[i] += momentum*vd[i] - eta*g
			} else {
				wd[i] += vd[i]
			}
		}
	})
}

func unaryFunc(name string, x, y Array, fn func(float32) float32) Function {
	if x.Dtype() != Float32 || y.Dtype() != Float32 {
		panic("UnaryFunc: dtype must by Float32")
	}
	if x.Size() != y.Size() {
		panic("UnaryFunc: arrays must be same size")
	}
	return args(name, func(int) {
		xd, yd := x.Float32s(), y.Float32s()
		for i, v := range xd {
			yd[i] = fn(v)
		}
	})
}

func binaryFunc(name string, x, y, z Array, fn func(x, y float32) float32) Function {
	if x.Dtype() != Float32 || y.Dtype() != Float32 || z.Dtype() != Float32 {
		panic("BinaryFunc: dtype must by Float32")
	}
	if x.Size() != z.Size() || y.Size() != z.Size() {
		panic("BinaryFunc: arrays must be same size")
	}
	return args(name, func(int) {
		xd, yd, zd := x.Float32s(), y.Float32s(), z.Float32s()
		for i := range zd {
			zd[i] = fn(xd[i], yd[i])
		}
	})
}

func vector(a Array) blas32.Vector {
	return blas32.Vector{N: a.Size(), Inc: 1, Data: a.Float32s()}
}

func general(a Array) blas32.General {
	dims := a.Dims()
	return blas32.General{Rows: dims[0], Cols: dims[1], Stride: dims[1], Data: a.Float32s()}
}

// matrix view on a slice with given rows and cols
func matrix(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data[:rows*cols]}
}
