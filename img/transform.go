package img

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Types of image transformations
type TransType int

const NoTrans TransType = 0

const (
	HorizFlip TransType = 1 << iota
	Shift
	Normalise
)

// Augment applies the random distortions used for the training set
var Augment = HorizFlip | Shift | Normalise

var transTypeNames = map[TransType]string{
	HorizFlip: "HorizFlip",
	Shift:     "Shift",
	Normalise: "Normalise",
}

func (t TransType) String() string {
	if t == NoTrans {
		return "None"
	}
	s := []string{}
	for key, name := range transTypeNames {
		if t&key != 0 {
			s = append(s, name)
		}
	}
	sort.Strings(s)
	return strings.Join(s, " ")
}

var (
	FlipProb  = 0.5
	ShiftFrac = 0.1
)

// Transformer applies a sequence of image transformations to a batch of images. Flipped and
// shifted images are filled from the nearest edge pixel.
type Transformer struct {
	Trans  TransType
	Mean   []float32
	StdDev []float32
	data   *Data
	rng    []*rand.Rand
}

// Create a new transformer object. Threads sets the number of parallel workers, or GOMAXPROCS if zero.
func NewTransformer(trans TransType, mean, std []float32, threads int, rng *rand.Rand) *Transformer {
	if trans&Normalise != 0 && (len(mean) == 0 || len(mean) != len(std)) {
		panic("NewTransformer: normalisation requires mean and stddev for each channel")
	}
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	t := &Transformer{Trans: trans, Mean: mean, StdDev: std}
	for i := 0; i < threads; i++ {
		t.rng = append(t.rng, rand.New(rand.NewSource(rng.Int63())))
	}
	return t
}

func (t *Transformer) String() string {
	return fmt.Sprintf("transform: %s mean=%.4f std=%.4f", t.Trans, t.Mean, t.StdDev)
}

// TransformBatch transforms the images with the given indexes in parallel and writes them to buf.
// Each worker processes a fixed subset of the batch with its own random source.
func (t *Transformer) TransformBatch(index []int, buf []float32) {
	if t.data == nil {
		panic("TransformBatch: transformer is not attached to a data set")
	}
	nfeat := t.data.nfeat()
	workers := len(t.rng)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := w; i < len(index); i += workers {
				t.Transform(t.data.Images[index[i]], buf[i*nfeat:(i+1)*nfeat], t.rng[w])
			}
			return nil
		})
	}
	g.Wait()
}

// Transform one image writing the output to dst
func (t *Transformer) Transform(src *Image, dst []float32, rng *rand.Rand) {
	flip := t.Trans&HorizFlip != 0 && rng.Float64() < FlipProb
	var ox, oy int
	if t.Trans&Shift != 0 {
		ox = randShift(rng, src.Width)
		oy = randShift(rng, src.Height)
	}
	if flip || ox != 0 || oy != 0 {
		shift(src, dst, flip, ox, oy)
	} else {
		copy(dst, src.Pix)
	}
	if t.Trans&Normalise != 0 {
		t.normalise(dst, src.Channels)
	}
}

// uniform random shift in range [-n, n] pixels where n is ShiftFrac of the size
func randShift(rng *rand.Rand, size int) int {
	n := int(math.Round(ShiftFrac * float64(size)))
	if n == 0 {
		return 0
	}
	return rng.Intn(2*n+1) - n
}

// output pixel (x, y) is taken from (x-ox, y-oy) of the optionally flipped source
func shift(src *Image, dst []float32, flip bool, ox, oy int) {
	w, h, c := src.Width, src.Height, src.Channels
	for y := 0; y < h; y++ {
		sy := clampi(y-oy, 0, h-1)
		for x := 0; x < w; x++ {
			sx := clampi(x-ox, 0, w-1)
			if flip {
				sx = w - 1 - sx
			}
			copy(dst[(y*w+x)*c:(y*w+x+1)*c], src.Pix[(sy*w+sx)*c:])
		}
	}
}

func (t *Transformer) normalise(pix []float32, channels int) {
	if len(t.Mean) != channels {
		panic(fmt.Sprintf("normalise: have stats for %d channels, image has %d", len(t.Mean), channels))
	}
	for i := range pix {
		ch := i % channels
		pix[i] = (pix[i] - t.Mean[ch]) / t.StdDev[ch]
	}
}

func clampi(x, x0, x1 int) int {
	if x < x0 {
		return x0
	}
	if x > x1 {
		return x1
	}
	return x
}
