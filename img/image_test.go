package img

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func printArray(in []float32, w, h int) string {
	s := make([]string, h)
	for i := 0; i < h; i++ {
		s[i] = fmt.Sprintf("%4.1f", in[i*w:(i+1)*w])
	}
	return strings.Join(s, "\n")
}

// gray image with pixel value x + 10*y
func testImage(w, h int) *Image {
	m := NewImage(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Pix[y*w+x] = float32(x + 10*y)
		}
	}
	return m
}

func TestImage(t *testing.T) {
	m := NewImage(4, 2, 3)
	m.Set(1, 0, RGB{R: 0.5, G: 0.25, B: 1})
	m.Set(5, 0, RGB{R: 1})
	assert.Equal(t, []float32{0, 0, 0, 0.5, 0.25, 1}, m.Pix[:6])
	assert.Equal(t, RGB{R: 0.5, G: 0.25, B: 1}, m.At(1, 0))
	assert.Equal(t, RGB{}, m.At(-1, 0))
	assert.Equal(t, []float32{0, 0.25, 0, 0, 0, 0, 0, 0}, m.Pixels(1))

	std := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	std.Set(1, 1, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
	conv := FromImage(std, 3)
	assert.Equal(t, RGB{R: 1, B: 1}, conv.At(1, 1))
	gray := FromImage(std, 1)
	assert.InDelta(t, 0.413, gray.At(1, 1).(Gray).Y, 1e-3)

	rgba := conv.ToRGBA()
	assert.Equal(t, color.RGBA{R: 255, B: 255, A: 255}, rgba.RGBAAt(1, 1))

	hl := Highlight(gray)
	assert.Equal(t, 3, hl.Channels)
	assert.Equal(t, RGB{R: 1}, hl.At(0, 0))
	assert.Panics(t, func() { NewImage(2, 2, 2) })
}

func TestShift(t *testing.T) {
	src := testImage(4, 3)
	dst := make([]float32, 12)
	shift(src, dst, false, 1, 0)
	t.Logf("shift right\n%s", printArray(dst, 4, 3))
	assert.Equal(t, []float32{0, 0, 1, 2}, dst[:4])

	shift(src, dst, false, -2, 1)
	t.Logf("shift left and down\n%s", printArray(dst, 4, 3))
	assert.Equal(t, []float32{2, 3, 3, 3, 2, 3, 3, 3, 12, 13, 13, 13}, dst)

	shift(src, dst, true, 0, 0)
	t.Logf("flip\n%s", printArray(dst, 4, 3))
	assert.Equal(t, []float32{3, 2, 1, 0}, dst[:4])
	assert.Equal(t, []float32{23, 22, 21, 20}, dst[8:])

	rgb := NewImage(2, 1, 3)
	copy(rgb.Pix, []float32{1, 2, 3, 4, 5, 6})
	dst = make([]float32, 6)
	shift(rgb, dst, true, 0, 0)
	assert.Equal(t, []float32{4, 5, 6, 1, 2, 3}, dst)
}

func TestTransformBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	images := make([]*Image, 20)
	labels := make([]int32, 20)
	for i := range images {
		images[i] = testImage(32, 32)
		labels[i] = int32(i % 10)
	}
	data := NewData([]string{"a", "b"}, labels, images)
	flipped, shifted := 0, 0
	trans := NewTransformer(HorizFlip|Shift, nil, nil, 4, rng)
	aug := data.SetTransformer(trans)
	assert.Nil(t, data.Transformer())
	index := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	buf := make([]float32, len(index)*32*32)
	for iter := 0; iter < 10; iter++ {
		aug.Input(index, buf)
		for i := range index {
			pix := buf[i*1024 : (i+1)*1024]
			// row 16 is increasing unless flipped, values stay within the source row range after the vertical shift
			row := pix[16*32 : 17*32]
			if row[0] > row[31] {
				flipped++
			}
			if row[16] != float32(16+160) {
				shifted++
			}
			for _, v := range row {
				require.True(t, v >= 130 && v <= 221, "value %g", v)
			}
		}
	}
	assert.InDelta(t, 50, flipped, 20)
	assert.Greater(t, shifted, 50)

	plain := make([]float32, 32*32)
	data.Input([]int{3}, plain)
	assert.Equal(t, images[3].Pix, plain)
}

func TestNormalise(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	images := make([]*Image, 100)
	for i := range images {
		images[i] = NewImage(8, 8, 3)
		for j := range images[i].Pix {
			ch := j % 3
			images[i].Pix[j] = float32(0.2*float64(ch) + 0.1 + 0.05*rng.NormFloat64())
		}
	}
	data := NewData([]string{"x"}, make([]int32, 100), images)
	mean, std := GetStats(images)
	assert.InDeltaSlice(t, []float32{0.1, 0.3, 0.5}, mean, 0.01)
	assert.InDeltaSlice(t, []float32{0.05, 0.05, 0.05}, std, 0.01)

	norm := data.SetTransformer(NewTransformer(Normalise, mean, std, 2, rng))
	mean2, std2 := norm.InputStats(100)
	assert.InDeltaSlice(t, []float32{0, 0, 0}, mean2, 1e-3)
	assert.InDeltaSlice(t, []float32{1, 1, 1}, std2, 1e-3)
	assert.Panics(t, func() { NewTransformer(Normalise, nil, nil, 1, rng) })
	assert.Equal(t, "HorizFlip Normalise Shift", Augment.String())
}

func TestEncodeDecode(t *testing.T) {
	images := []*Image{testImage(3, 2), testImage(3, 2)}
	data := NewData([]string{"zero", "one"}, []int32{1, 0}, images)
	var buf bytes.Buffer
	require.NoError(t, data.Encode(&buf))
	var data2 Data
	require.NoError(t, data2.Decode(&buf))
	assert.Equal(t, data.DataHead, data2.DataHead)
	assert.Equal(t, data.Images[1].Pix, data2.Images[1].Pix)
	assert.Equal(t, []int{2, 3, 1}, data2.Shape())

	sub := data.Subset([]int{1})
	assert.Equal(t, []int32{0}, sub.Labels)
	assert.Same(t, images[1], sub.Images[0])
	assert.Equal(t, 1, data.Slice(0, 1).Len())
}
