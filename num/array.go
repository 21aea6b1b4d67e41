package num

import (
	"fmt"
	"strings"
)

// Parameters for array printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Array interface is a general n dimensional tensor similar to a numpy ndarray.
// Data is stored internally in row major order, so an image batch has dims [batch, height, width, channels].
type Array interface {
	// Dims returns the shape of the array in outermost to innermost order
	Dims() []int
	// Size is total number of elements
	Size() int
	// Dtype returns the data type of the elements in the array
	Dtype() DataType
	// Reshape returns a new array of the same size with a view on the same data but with a different shape
	Reshape(dims ...int) Array
	// Reference to the raw data, panics if the array is not of the requested type
	Float32s() []float32
	Int32s() []int32
	// Formatted output
	String(q Queue) string
	// Release any allocated memory
	Release()
}

// array resident in main memory
type arrayCPU struct {
	arrayBase
	f32 []float32
	i32 []int32
}

func (d cpuDevice) NewArray(dtype DataType, dims ...int) Array {
	dims = append([]int{}, dims...)
	for _, d := range dims {
		if d <= 0 {
			panic(fmt.Sprintf("NewArray: invalid dimensions %v", dims))
		}
	}
	return newArrayCPU(dtype, dims)
}

func (d cpuDevice) NewArrayLike(a Array) Array {
	return newArrayCPU(a.Dtype(), append([]int{}, a.Dims()...))
}

func newArrayCPU(dtype DataType, dims []int) *arrayCPU {
	a := &arrayCPU{arrayBase: arrayBase{size: Prod(dims), dims: dims, dtype: dtype}}
	switch dtype {
	case Float32:
		a.f32 = make([]float32, a.size)
	case Int32:
		a.i32 = make([]int32, a.size)
	default:
		panic(fmt.Sprintf("NewArray: invalid data type %d", dtype))
	}
	return a
}

func (a *arrayCPU) Float32s() []float32 {
	if a.dtype != Float32 {
		panic("Float32s: array is not of type Float32")
	}
	return a.f32
}

func (a *arrayCPU) Int32s() []int32 {
	if a.dtype != Int32 {
		panic("Int32s: array is not of type Int32")
	}
	return a.i32
}

func (a *arrayCPU) Release() {}

func (a *arrayCPU) Reshape(dims ...int) Array {
	return &arrayCPU{arrayBase: a.reshape(dims), f32: a.f32, i32: a.i32}
}

func (a *arrayCPU) String(q Queue) string { return toString(a, q) }

// common array functions
type arrayBase struct {
	size  int
	dims  []int
	dtype DataType
}

func (a arrayBase) Size() int { return a.size }

func (a arrayBase) Dims() []int { return a.dims }

func (a arrayBase) Dtype() DataType { return a.dtype }

func (a arrayBase) reshape(in []int) arrayBase {
	dims := append([]int{}, in...)
	n := a.size
	for i := range dims {
		if dims[i] == -1 {
			other := 1
			for j, dim := range dims {
				if i != j {
					if dim == -1 {
						panic("Reshape: can only have single -1 value")
					}
					other *= dim
				}
			}
			dims[i] = n / other
		}
	}
	if Prod(dims) != n {
		panic(fmt.Sprintf("Reshape: cannot reshape %v to %v", a.dims, in))
	}
	return arrayBase{size: n, dims: dims, dtype: a.dtype}
}

func toString(a Array, q Queue) string {
	if q != nil {
		q.Finish()
	}
	var s strings.Builder
	format(&s, a, a.Dims(), 0, "")
	return s.String()
}

func format(s *strings.Builder, a Array, dims []int, at int, indent string) {
	if len(dims) == 0 {
		if a.Dtype() == Int32 {
			fmt.Fprintf(s, "%5d", a.Int32s()[at])
			return
		}
		val := a.Float32s()[at]
		if abs(val) < 1 {
			val = float32(int(10000*val+0.5)) / 10000
		}
		fmt.Fprintf(s, "%7.5g", val)
		return
	}
	stride := Prod(dims[1:])
	s.WriteString("[")
	for i := 0; i < dims[0]; i++ {
		if dims[0] > PrintThreshold+1 && i == PrintEdgeitems {
			if len(dims) == 1 {
				s.WriteString("     ...")
			} else {
				s.WriteString("...\n" + indent + " ")
			}
			i = dims[0] - PrintEdgeitems - 1
			continue
		}
		if len(dims) == 1 {
			s.WriteString(" ")
		}
		format(s, a, dims[1:], at+i*stride, indent+" ")
		if len(dims) > 1 && i < dims[0]-1 {
			s.WriteString("\n" + indent + " ")
		}
	}
	s.WriteString(" ]")
	if indent == "" {
		s.WriteString("\n")
	}
}

func abs(x float32) float32 {
	if x >= 0 {
		return x
	}
	return -x
}

// Product of elements of an integer array. Zero dimension array (scalar) has size 1.
func Prod(arr []int) int {
	prod := 1
	for _, v := range arr {
		prod *= v
	}
	return prod
}

// Check if two arrays are the same shape
func SameShape(xd, yd []int) bool {
	if len(xd) != len(yd) {
		return false
	}
	for i := range xd {
		if xd[i] != yd[i] {
			return false
		}
	}
	return true
}

// Total size of one of more arrays in bytes
func Bytes(arr ...Array) (bytes int) {
	for _, a := range arr {
		if a != nil {
			bytes += 4 * a.Size()
		}
	}
	return bytes
}

// Release one or more arrays
func Release(arr ...Array) {
	for _, a := range arr {
		if a != nil {
			a.Release()
		}
	}
}
