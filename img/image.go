// Package img contains routines for manipulating sets of images.
package img

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

var (
	GrayModel = color.ModelFunc(grayModel)
	RGBModel  = color.ModelFunc(rgbModel)
)

// Gray color stored a float in range 0-1
type Gray struct {
	Y float32
}

func (c Gray) RGBA() (r, g, b, a uint32) {
	y := clampu(c.Y, 0, 1)
	return y, y, y, 0xffff
}

func grayModel(c color.Color) color.Color {
	if _, ok := c.(Gray); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return Gray{Y: 0.299*float32(r)/0xffff + 0.587*float32(g)/0xffff + 0.114*float32(b)/0xffff}
}

// RGB color is stored as a float for each channel with values in range 0-1
type RGB struct {
	R, G, B float32
}

func (c RGB) RGBA() (r, g, b, a uint32) {
	return clampu(c.R, 0, 1), clampu(c.G, 0, 1), clampu(c.B, 0, 1), 0xffff
}

func rgbModel(c color.Color) color.Color {
	if _, ok := c.(RGB); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return RGB{R: float32(r) / 0xffff, G: float32(g) / 0xffff, B: float32(b) / 0xffff}
}

// Image type stores the pixel data as float32 values in row major order with the channels
// interleaved, i.e. the layout of one [height, width, channels] entry of an NHWC batch.
// It implements the draw.Image interface.
type Image struct {
	Pix      []float32
	Width    int
	Height   int
	Channels int
}

var _ draw.Image = (*Image)(nil)

// NewImage allocates a new image with 1 (gray) or 3 (RGB) channels
func NewImage(width, height, channels int) *Image {
	if channels != 1 && channels != 3 {
		panic(fmt.Sprintf("NewImage: invalid number of channels %d", channels))
	}
	return &Image{Pix: make([]float32, width*height*channels), Width: width, Height: height, Channels: channels}
}

func NewImageLike(src *Image) *Image {
	return NewImage(src.Width, src.Height, src.Channels)
}

// FromImage converts from a standard library image
func FromImage(src image.Image, channels int) *Image {
	b := src.Bounds()
	m := NewImage(b.Dx(), b.Dy(), channels)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			m.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return m
}

func (m *Image) ColorModel() color.Model {
	if m.Channels == 1 {
		return GrayModel
	}
	return RGBModel
}

func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m *Image) offset(x, y int) int {
	return (y*m.Width + x) * m.Channels
}

func (m *Image) At(x, y int) color.Color {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		if m.Channels == 1 {
			return Gray{}
		}
		return RGB{}
	}
	i := m.offset(x, y)
	if m.Channels == 1 {
		return Gray{Y: m.Pix[i]}
	}
	return RGB{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2]}
}

func (m *Image) Set(x, y int, c color.Color) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	i := m.offset(x, y)
	if m.Channels == 1 {
		m.Pix[i] = grayModel(c).(Gray).Y
		return
	}
	rgb := rgbModel(c).(RGB)
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = rgb.R, rgb.G, rgb.B
}

// Pixels returns a copy of the values for one colour channel
func (m *Image) Pixels(ch int) []float32 {
	if ch < 0 || ch >= m.Channels {
		panic(fmt.Sprintf("Pixels: invalid channel %d", ch))
	}
	res := make([]float32, m.Width*m.Height)
	for i := range res {
		res[i] = m.Pix[i*m.Channels+ch]
	}
	return res
}

// SetPixels sets the values for one colour channel
func (m *Image) SetPixels(ch int, pix []float32) {
	for i, v := range pix {
		m.Pix[i*m.Channels+ch] = v
	}
}

// ToRGBA converts to a standard library image with values clamped to 0-1.
func (m *Image) ToRGBA() *image.RGBA {
	dst := image.NewRGBA(m.Bounds())
	draw.Draw(dst, dst.Bounds(), m, image.Point{}, draw.Src)
	return dst
}

// Highlight draws a red border around the image, used to mark an incorrect prediction
func Highlight(in *Image) *Image {
	dst := NewImage(in.Width, in.Height, 3)
	draw.Draw(dst, dst.Bounds(), in, image.Point{}, draw.Src)
	red := RGB{R: 1}
	for x := 0; x < dst.Width; x++ {
		dst.Set(x, 0, red)
		dst.Set(x, dst.Height-1, red)
	}
	for y := 0; y < dst.Height; y++ {
		dst.Set(0, y, red)
		dst.Set(dst.Width-1, y, red)
	}
	return dst
}

func clampu(x, x0, x1 float32) uint32 {
	return uint32(clamp(x, x0, x1) * 0xffff)
}

func clamp(x, x0, x1 float32) float32 {
	if x < x0 {
		return x0
	}
	if x > x1 {
		return x1
	}
	return x
}
