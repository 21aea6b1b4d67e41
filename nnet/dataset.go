package nnet

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
)

// DataDir is the directory used for data, config and weight files. It is set from the CIFAR10_DATA
// environment variable if present.
var DataDir = dataDir()

func dataDir() string {
	if dir := os.Getenv("CIFAR10_DATA"); dir != "" {
		return dir
	}
	return "data"
}

// Data interface type represents the raw data for a training or test set
type Data interface {
	Len() int
	Classes() []string
	Shape() []int
	Label(index []int, label []int32)
	Input(index []int, buf []float32)
}

// Dataset type encapsulates a set of training, test or validation data. Batches are loaded
// in the background into one of two buffers while the previous batch is being processed.
type Dataset struct {
	Data
	Samples   int
	BatchSize int
	Batches   int
	queue     num.Queue
	xBuffer   []float32
	yBuffer   []int32
	x, y      [2]num.Array
	count     [2]int
	indexes   []int
	buf       int
	batch     int
	rng       *rand.Rand
	sync.WaitGroup
}

// Create a new Dataset struct, allocate array buffers and set the batch size and maxSamples.
// If fullBatches is set then any final partial batch is skipped, else it is padded by repeating
// the first sample of the batch and NextBatch reports the number of valid entries.
func NewDataset(dev num.Device, data Data, batchSize, maxSamples int, fullBatches bool, rng *rand.Rand) *Dataset {
	d := &Dataset{Data: data, Samples: data.Len(), rng: rng}
	if maxSamples > 0 && d.Samples > maxSamples {
		d.Samples = maxSamples
	}
	if batchSize <= 0 || batchSize > d.Samples {
		d.BatchSize = d.Samples
	} else {
		d.BatchSize = batchSize
	}
	d.Batches = d.Samples / d.BatchSize
	if !fullBatches && d.Samples%d.BatchSize != 0 {
		d.Batches++
	}
	nfeat := num.Prod(data.Shape())
	d.xBuffer = make([]float32, nfeat*d.BatchSize)
	d.yBuffer = make([]int32, d.BatchSize)
	for i := range d.x {
		d.x[i] = dev.NewArray(num.Float32, append([]int{d.BatchSize}, data.Shape()...)...)
		d.y[i] = dev.NewArray(num.Int32, d.BatchSize)
	}
	// a limited data set always uses the same first Samples entries, Shuffle only reorders them
	d.indexes = make([]int, d.Samples)
	for i := range d.indexes {
		d.indexes[i] = i
	}
	d.queue = dev.NewQueue(1)
	return d
}

// Shape of each batch of input data
func (d *Dataset) BatchShape() []int {
	return append([]int{d.BatchSize}, d.Shape()...)
}

// Release allocated buffers
func (d *Dataset) Release() {
	d.Wait()
	for i := range d.x {
		num.Release(d.x[i], d.y[i])
	}
}

// kick off load of next batch of data in background
func (d *Dataset) loadBatch() {
	d.Add(1)
	go func(batch, buf int) {
		defer d.Done()
		start := batch * d.BatchSize
		end := min(start+d.BatchSize, d.Samples)
		index := make([]int, d.BatchSize)
		copy(index, d.indexes[start:end])
		for i := end - start; i < d.BatchSize; i++ {
			index[i] = d.indexes[start]
		}
		d.Input(index, d.xBuffer)
		d.Label(index, d.yBuffer)
		d.queue.Call(
			num.Write(d.x[buf], d.xBuffer),
			num.Write(d.y[buf], d.yBuffer),
		).Finish()
		d.count[buf] = end - start
	}(d.batch, d.buf)
}

// NextBatch returns the next batch of input data and labels and the number of valid samples.
// The arrays are reused after the following call so any queued operations using them must have completed.
func (d *Dataset) NextBatch() (x, y num.Array, n int) {
	d.Wait()
	if d.batch >= d.Batches {
		panic(fmt.Sprintf("NextBatch: read past end of data - %d batches", d.Batches))
	}
	x, y, n = d.x[d.buf], d.y[d.buf], d.count[d.buf]
	d.batch++
	d.buf = (d.buf + 1) % 2
	if d.batch < d.Batches {
		d.loadBatch()
	}
	return
}

// Rewind to start of data and load the first batch
func (d *Dataset) Rewind() {
	d.Wait()
	d.batch = 0
	d.buf = 0
	d.loadBatch()
}

// Shuffle the data set, the new order takes effect from the next Rewind.
func (d *Dataset) Shuffle() {
	d.Wait()
	d.rng.Shuffle(len(d.indexes), func(i, j int) {
		d.indexes[i], d.indexes[j] = d.indexes[j], d.indexes[i]
	})
}

// Check if file exists under DataDir
func FileExists(name string) bool {
	_, err := os.Stat(filepath.Join(DataDir, name))
	return err == nil
}

type data struct {
	Class  []string
	Dims   []int
	Labels []int32
	Inputs []float32
}

// NewData function creates a new data set which implements the Data interface
func NewData(nclasses int, shape []int, labels []int32, inputs []float32) Data {
	classes := make([]string, nclasses)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return data{Class: classes, Dims: shape, Labels: labels, Inputs: inputs}
}

func (d data) Len() int { return len(d.Labels) }

func (d data) Classes() []string { return d.Class }

func (d data) Shape() []int { return d.Dims }

func (d data) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

func (d data) Input(index []int, buf []float32) {
	nfeat := num.Prod(d.Dims)
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Inputs[ix*nfeat:(ix+1)*nfeat])
	}
}
