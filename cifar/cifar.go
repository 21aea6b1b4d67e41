// Package cifar loads the CIFAR-10 data set in binary format and prepares the training, validation
// and test splits.
package cifar

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/img"
)

const (
	Width      = 32
	Height     = 32
	Channels   = 3
	NumClasses = 10
	imageSize  = Width * Height
	recordSize = imageSize*Channels + 1
)

// Per channel normalisation constants for the RGB channels
var (
	Mean   = []float32{0.4914, 0.4822, 0.4465}
	StdDev = []float32{0.2023, 0.1994, 0.2010}
)

// Files in the binary distribution
var (
	TrainFiles = []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin", "data_batch_4.bin", "data_batch_5.bin"}
	TestFile   = "test_batch.bin"
	MetaFile   = "batches.meta.txt"
)

// Default class names if the meta file is not present
var ClassNames = []string{"airplane", "automobile", "bird", "cat", "deer", "dog", "frog", "horse", "ship", "truck"}

// Load reads the training and test images from the binary batch files in dir.
func Load(dir string) (train, test *img.Data, err error) {
	classes, err := ReadClasses(filepath.Join(dir, MetaFile))
	if errors.Is(err, os.ErrNotExist) {
		classes = ClassNames
	} else if err != nil {
		return nil, nil, err
	}
	for _, name := range TrainFiles {
		d, err := LoadBatch(filepath.Join(dir, name), classes)
		if err != nil {
			return nil, nil, err
		}
		if train == nil {
			train = d
		} else {
			train.Labels = append(train.Labels, d.Labels...)
			train.Images = append(train.Images, d.Images...)
		}
	}
	if test, err = LoadBatch(filepath.Join(dir, TestFile), classes); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// LoadBatch reads one batch file where each record is a label byte followed by the red, green and blue planes.
func LoadBatch(pathName string, classes []string) (*img.Data, error) {
	f, err := os.Open(pathName)
	if err != nil {
		return nil, fmt.Errorf("error opening batch: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	labels := make([]int32, 0, 10000)
	images := make([]*img.Image, 0, 10000)
	buf := make([]byte, recordSize)
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record %d from %s: %w", len(labels), pathName, err)
		}
		if int(buf[0]) >= len(classes) {
			return nil, fmt.Errorf("invalid label %d for record %d in %s", buf[0], len(labels), pathName)
		}
		labels = append(labels, int32(buf[0]))
		images = append(images, decodeImage(buf[1:]))
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no images in %s", pathName)
	}
	slog.Debug("read images", "file", filepath.Base(pathName), "count", len(labels))
	return img.NewData(classes, labels, images), nil
}

// planar bytes to interleaved float image with values 0-1
func decodeImage(data []byte) *img.Image {
	m := img.NewImage(Width, Height, Channels)
	for j := 0; j < imageSize; j++ {
		for ch := 0; ch < Channels; ch++ {
			m.Pix[j*Channels+ch] = float32(data[ch*imageSize+j]) / 255
		}
	}
	return m
}

// ReadClasses loads the class descriptions, one per line.
func ReadClasses(pathName string) ([]string, error) {
	f, err := os.Open(pathName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	classes := []string{}
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, s.Err()
}

// Shapes returns the array shapes of the images and labels in the same form as a numpy array.
func Shapes(d *img.Data) (images, labels string) {
	dims := append([]int{d.Len()}, d.Shape()...)
	s := make([]string, len(dims))
	for i, n := range dims {
		s[i] = fmt.Sprint(n)
	}
	return "(" + strings.Join(s, ", ") + ")", fmt.Sprintf("(%d,)", d.Len())
}
