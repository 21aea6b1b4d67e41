package img

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/stats"
)

// Image data set which implements the nnet.Data interface. If a Transformer is attached
// the input data is augmented and normalised as each batch is loaded.
type Data struct {
	DataHead
	Images []*Image
	trans  *Transformer
}

type DataHead struct {
	Class  []string
	Dims   []int
	Labels []int32
}

// Create a new image set
func NewData(classes []string, labels []int32, images []*Image) *Data {
	if len(labels) != len(images) || len(images) == 0 {
		panic(fmt.Sprintf("NewData: have %d labels and %d images", len(labels), len(images)))
	}
	src := images[0]
	dims := []int{src.Height, src.Width, src.Channels}
	return &Data{
		DataHead: DataHead{Class: classes, Dims: dims, Labels: labels},
		Images:   images,
	}
}

// Len function returns number of images
func (d *Data) Len() int { return len(d.Labels) }

// Classes function returns the label names
func (d *Data) Classes() []string { return d.Class }

// Shape returns height, width, channels
func (d *Data) Shape() []int { return d.Dims }

// Label returns classification for given images
func (d *Data) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

// Input returns the input data in buf array, transformed if a Transformer is set
func (d *Data) Input(index []int, buf []float32) {
	if d.trans != nil {
		d.trans.TransformBatch(index, buf)
		return
	}
	nfeat := d.nfeat()
	for i, ix := range index {
		copy(buf[i*nfeat:], d.Images[ix].Pix)
	}
}

// SetTransformer attaches t to a shallow copy of the data so the same images can be shared between
// an augmented and a plain view.
func (d *Data) SetTransformer(t *Transformer) *Data {
	data := *d
	data.trans = t
	if t != nil {
		t.data = &data
	}
	return &data
}

func (d *Data) Transformer() *Transformer { return d.trans }

// Image returns given image number, if channel is set then just show this colour channel
func (d *Data) Image(ix int, channel string) *Image {
	src := d.Images[ix]
	ch, haveChannel := map[string]int{"r": 0, "g": 1, "b": 2}[channel]
	if !haveChannel || src.Channels == 1 {
		return src
	}
	dst := NewImageLike(src)
	pix := src.Pixels(ch)
	for i := 0; i < src.Channels; i++ {
		dst.SetPixels(i, pix)
	}
	return dst
}

// Slice returns images from start to end
func (d *Data) Slice(start, end int) *Data {
	data := *d
	data.trans = nil
	data.Labels = append([]int32{}, d.Labels[start:end]...)
	data.Images = append([]*Image{}, d.Images[start:end]...)
	return &data
}

// Subset returns the images with the given indexes
func (d *Data) Subset(index []int) *Data {
	data := *d
	data.trans = nil
	data.Labels = make([]int32, len(index))
	data.Images = make([]*Image, len(index))
	for i, ix := range index {
		data.Labels[i] = d.Labels[ix]
		data.Images[i] = d.Images[ix]
	}
	return &data
}

func (d *Data) nfeat() int {
	n := 1
	for _, d := range d.Dims {
		n *= d
	}
	return n
}

// Encode data to binary file
func (d *Data) Encode(w io.Writer) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(&d.DataHead); err != nil {
		return fmt.Errorf("error encoding header: %w", err)
	}
	for i, img := range d.Images {
		if err := enc.Encode(img); err != nil {
			return fmt.Errorf("error encoding image %d: %w", i, err)
		}
	}
	return nil
}

// Decode data from binary file
func (d *Data) Decode(r io.Reader) error {
	d.DataHead = DataHead{}
	d.trans = nil
	dec := gob.NewDecoder(r)
	if err := dec.Decode(&d.DataHead); err != nil {
		return fmt.Errorf("error decoding header: %w", err)
	}
	d.Images = make([]*Image, d.Len())
	for i := range d.Images {
		if err := dec.Decode(&d.Images[i]); err != nil {
			return fmt.Errorf("error decoding image %d: %w", i, err)
		}
	}
	return nil
}

// Calculate per channel mean and stddev from set of images
func GetStats(imgList ...[]*Image) (mean, std []float32) {
	channels := imgList[0][0].Channels
	stat := make([]*stats.Average, channels)
	for i := range stat {
		stat[i] = new(stats.Average)
	}
	for _, images := range imgList {
		for _, img := range images {
			for i, val := range img.Pix {
				stat[i%channels].Add(float64(val))
			}
		}
	}
	return averages(stat)
}

// InputStats calculates the per channel mean and stddev of the first n inputs as returned by
// the Input method, i.e. after any transformation has been applied.
func (d *Data) InputStats(n int) (mean, std []float32) {
	n = min(n, d.Len())
	channels := d.Dims[len(d.Dims)-1]
	stat := make([]*stats.Average, channels)
	for i := range stat {
		stat[i] = new(stats.Average)
	}
	const batch = 256
	buf := make([]float32, batch*d.nfeat())
	index := make([]int, 0, batch)
	for start := 0; start < n; start += batch {
		index = index[:0]
		for i := start; i < min(start+batch, n); i++ {
			index = append(index, i)
		}
		d.Input(index, buf)
		for i, val := range buf[:len(index)*d.nfeat()] {
			stat[i%channels].Add(float64(val))
		}
	}
	return averages(stat)
}

func averages(stat []*stats.Average) (mean, std []float32) {
	mean = make([]float32, len(stat))
	std = make([]float32, len(stat))
	for i, s := range stat {
		mean[i] = float32(s.Mean)
		std[i] = float32(s.StdDev)
	}
	return mean, std
}
