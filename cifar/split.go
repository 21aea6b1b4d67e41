package cifar

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/img"
)

// Split divides the data into training and validation sets. The split is stratified so each class
// contributes the same fraction of its samples to the validation set.
func Split(d *img.Data, validFrac float64, rng *rand.Rand) (train, valid *img.Data) {
	if validFrac <= 0 || validFrac >= 1 {
		panic(fmt.Sprintf("Split: invalid validation fraction %g", validFrac))
	}
	byClass := make([][]int, len(d.Classes()))
	for i, label := range d.Labels {
		byClass[label] = append(byClass[label], i)
	}
	var trainIx, validIx []int
	for _, index := range byClass {
		rng.Shuffle(len(index), func(i, j int) { index[i], index[j] = index[j], index[i] })
		n := int(math.Round(validFrac * float64(len(index))))
		validIx = append(validIx, index[:n]...)
		trainIx = append(trainIx, index[n:]...)
	}
	rng.Shuffle(len(trainIx), func(i, j int) { trainIx[i], trainIx[j] = trainIx[j], trainIx[i] })
	rng.Shuffle(len(validIx), func(i, j int) { validIx[i], validIx[j] = validIx[j], validIx[i] })
	return d.Subset(trainIx), d.Subset(validIx)
}

// ClassCounts returns the number of samples for each label
func ClassCounts(d *img.Data) []int {
	counts := make([]int, len(d.Classes()))
	for _, label := range d.Labels {
		counts[label]++
	}
	return counts
}

// Cache file names under the data directory
const (
	TrainCache = "cifar10_train.dat"
	TestCache  = "cifar10_test.dat"
)

// SaveCache writes the data set in gob format
func SaveCache(d *img.Data, pathName string) error {
	if err := os.MkdirAll(filepath.Dir(pathName), 0755); err != nil {
		return err
	}
	f, err := os.Create(pathName)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err = d.Encode(w); err == nil {
		err = w.Flush()
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("error saving %s: %w", pathName, err)
	}
	slog.Debug("saved cache", "file", pathName, "images", d.Len())
	return f.Close()
}

// LoadCache reads a data set written by SaveCache
func LoadCache(pathName string) (*img.Data, error) {
	f, err := os.Open(pathName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d := new(img.Data)
	if err = d.Decode(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("error loading %s: %w", pathName, err)
	}
	return d, nil
}

// Prepare returns the training and test sets, using the cache files in dir if they exist, else
// loading the binary batch files from srcDir and writing the cache.
func Prepare(dir, srcDir string) (train, test *img.Data, err error) {
	trainPath, testPath := filepath.Join(dir, TrainCache), filepath.Join(dir, TestCache)
	if train, err = LoadCache(trainPath); err == nil {
		if test, err = LoadCache(testPath); err == nil {
			slog.Info("loaded cached data", "train", train.Len(), "test", test.Len())
			return train, test, nil
		}
	}
	if train, test, err = Load(srcDir); err != nil {
		return nil, nil, err
	}
	if err = SaveCache(train, trainPath); err != nil {
		return nil, nil, err
	}
	if err = SaveCache(test, testPath); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
