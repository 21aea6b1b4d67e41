package report

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"

	"golang.org/x/image/draw"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/img"
)

// gap in pixels between tiles
const border = 2

// Montage tiles the images in a grid with cols columns, each scaled up by an integer factor.
func Montage(images []*img.Image, cols, scale int) *image.RGBA {
	if len(images) == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	cols = max(1, min(cols, len(images)))
	rows := (len(images) + cols - 1) / cols
	tw, th := images[0].Width*scale, images[0].Height*scale
	dst := image.NewRGBA(image.Rect(0, 0, cols*(tw+border)+border, rows*(th+border)+border))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	for i, m := range images {
		x0 := border + (i%cols)*(tw+border)
		y0 := border + (i/cols)*(th+border)
		draw.NearestNeighbor.Scale(dst, image.Rect(x0, y0, x0+tw, y0+th), m, m.Bounds(), draw.Src, nil)
	}
	return dst
}

// Augmented returns n randomly chosen images from the set with the random flip and shift applied,
// before normalisation so they can be displayed.
func Augmented(d *img.Data, n int, rng *rand.Rand) []*img.Image {
	t := img.NewTransformer(img.HorizFlip|img.Shift, nil, nil, 1, rng)
	n = min(n, d.Len())
	res := make([]*img.Image, n)
	for i, ix := range rng.Perm(d.Len())[:n] {
		src := d.Images[ix]
		res[i] = img.NewImageLike(src)
		t.Transform(src, res[i].Pix, rng)
	}
	return res
}

// SaveMontage writes the montage to a PNG file.
func SaveMontage(name string, images []*img.Image, cols, scale int) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err = png.Encode(f, Montage(images, cols, scale)); err != nil {
		f.Close()
		return fmt.Errorf("error encoding %s: %w", name, err)
	}
	return f.Close()
}
