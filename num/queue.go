package num

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Maximum number of functions buffered before the queue is flushed
const QueueSize = 64

// Device interface type
type Device interface {
	// Setup new worker queue
	NewQueue(threads int) Queue
	// Allocate new n dimensional array
	NewArray(dtype DataType, dims ...int) Array
	NewArrayLike(a Array) Array
	// Create new DNN layers
	ConvLayer(inShape []int, nFeats, size, stride int, pad, noBias bool) Layer
	DepthwiseConvLayer(inShape []int, size, stride int, pad, noBias bool) Layer
	PoolLayer(inShape []int, size, stride int, pad, average bool) Layer
	BatchNormLayer(inShape []int, momentum, epsilon float64) BatchNormLayer
}

// Initialise new CPU device
func NewDevice() Device {
	return cpuDevice{}
}

// NewCPUDevice is an alias for NewDevice, there being no other type of device.
func NewCPUDevice() Device {
	return cpuDevice{}
}

// A Queue processes a series of operations on a Device
type Queue interface {
	Device
	Dev() Device
	// Threads is the number of goroutines used by parallel kernels
	Threads() int
	// Asyncronous function call
	Call(args ...Function) Queue
	// Wait for any pending requests to complete
	Finish()
	// Shutdown the queue and release any resources
	Shutdown()
	// Enable profiling
	Profiling(on bool)
	Profile() string
}

// CPU device using gonum BLAS routines and goroutines for batch parallelism.
type cpuDevice struct{}

type cpuQueue struct {
	cpuDevice
	buffer  []Function
	threads int
	*profile
}

// NewQueue creates a new queue. If threads is < 1 then GOMAXPROCS goroutines are used.
func (d cpuDevice) NewQueue(threads int) Queue {
	if threads < 1 {
		threads = runtime.GOMAXPROCS(0)
	}
	return &cpuQueue{
		cpuDevice: d,
		buffer:    make([]Function, 0, QueueSize),
		threads:   threads,
		profile:   newProfile(),
	}
}

func (q *cpuQueue) Dev() Device { return q.cpuDevice }

func (q *cpuQueue) Threads() int { return q.threads }

func (q *cpuQueue) exec() {
	for _, f := range q.buffer {
		if q.profile.enabled {
			start := time.Now()
			f.call(q.threads)
			q.profile.add(f.name, time.Since(start))
		} else {
			f.call(q.threads)
		}
	}
	q.buffer = q.buffer[:0]
}

func (q *cpuQueue) Call(args ...Function) Queue {
	for _, arg := range args {
		if len(q.buffer) >= QueueSize {
			q.exec()
		}
		q.buffer = append(q.buffer, arg)
	}
	return q
}

func (q *cpuQueue) Finish() {
	if len(q.buffer) > 0 {
		q.exec()
	}
}

func (q *cpuQueue) Shutdown() {
	q.Finish()
	if q.profile.enabled {
		fmt.Print(q.Profile())
	}
}

// profiling functions
type profile struct {
	prof    map[string]profileRec
	enabled bool
}

type profileRec struct {
	name  string
	calls int64
	msec  float64
}

func newProfile() *profile {
	return &profile{prof: make(map[string]profileRec)}
}

func (p *profile) Profiling(on bool) {
	p.enabled = on
}

func (p *profile) add(name string, elapsed time.Duration) {
	r := p.prof[name]
	r.name = name
	r.calls++
	r.msec += elapsed.Seconds() * 1000
	p.prof[name] = r
}

// Profile returns a table of calls and time spent per function, most expensive first.
func (p *profile) Profile() string {
	list := make([]profileRec, 0, len(p.prof))
	for _, v := range p.prof {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[j].msec < list[i].msec })
	var s strings.Builder
	totalCalls := int64(0)
	totalMsec := 0.0
	for _, r := range list {
		fmt.Fprintf(&s, "%-25s %8d calls %10.1f msec\n", r.name, r.calls, r.msec)
		totalCalls += r.calls
		totalMsec += r.msec
	}
	fmt.Fprintf(&s, "%-25s %8d calls %10.1f msec\n", "TOTAL", totalCalls, totalMsec)
	return s.String()
}
