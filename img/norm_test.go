package img_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/img"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/num"
)

var chars = "  ...+++**"

func printImage(m *img.Image) string {
	s := ""
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			val := int(m.Pix[(y*m.Width+x)*m.Channels] * 10)
			val = max(0, min(val, 9))
			s += string(chars[val]) + " "
		}
		s += "\n"
	}
	return s
}

func TestDatasetNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	images := make([]*img.Image, 50)
	labels := make([]int32, 50)
	for i := range images {
		images[i] = img.NewImage(8, 8, 3)
		for j := range images[i].Pix {
			images[i].Pix[j] = rng.Float32()
		}
		labels[i] = int32(i % 10)
	}
	t.Log("\n" + printImage(images[0]))
	mean, std := img.GetStats(images)
	data := img.NewData([]string{"a"}, labels, images)
	aug := data.SetTransformer(img.NewTransformer(img.Augment, mean, std, 0, rng))

	dset := nnet.NewDataset(num.NewDevice(), aug, 16, 0, false, rng)
	defer dset.Release()
	require.Equal(t, []int{16, 8, 8, 3}, dset.BatchShape())
	dset.Rewind()
	x, y, n := dset.NextBatch()
	assert.Equal(t, 16, n)
	assert.Equal(t, labels[:16], y.Int32s())
	var sum float64
	for _, v := range x.Float32s() {
		sum += float64(v)
	}
	assert.InDelta(t, 0, sum/float64(x.Size()), 0.1)
}
