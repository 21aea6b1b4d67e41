package cifar

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/img"
)

// records per synthetic batch file
const perBatch = 20

// batch file with labels i%10, the red plane set to the label*10, green to the record number and blue 255
func batchFile(offset int) []byte {
	var buf bytes.Buffer
	for i := 0; i < perBatch; i++ {
		rec := make([]byte, recordSize)
		rec[0] = byte(i % NumClasses)
		for j := 0; j < imageSize; j++ {
			rec[1+j] = byte(10 * (i % NumClasses))
			rec[1+imageSize+j] = byte(offset + i)
			rec[1+2*imageSize+j] = 255
		}
		buf.Write(rec)
	}
	return buf.Bytes()
}

func writeBatches(t *testing.T, dir string) {
	t.Helper()
	for i, name := range append(TrainFiles, TestFile) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), batchFile(i*perBatch), 0644))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeBatches(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetaFile), []byte("a\nb\nc\nd\ne\nf\ng\nh\ni\nj\n\n"), 0644))

	train, test, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5*perBatch, train.Len())
	assert.Equal(t, perBatch, test.Len())
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, train.Classes())

	imgShape, labelShape := Shapes(train)
	assert.Equal(t, "(100, 32, 32, 3)", imgShape)
	assert.Equal(t, "(100,)", labelShape)
	for _, label := range train.Labels {
		assert.True(t, label >= 0 && label < NumClasses)
	}
	m := train.Images[23]
	assert.Equal(t, int32(3), train.Labels[23])
	assert.Equal(t, img.RGB{R: 30.0 / 255, G: 23.0 / 255, B: 1}, m.At(5, 7))
	assert.Equal(t, []int{2, 2, 2, 2, 2, 2, 2, 2, 2, 2}, ClassCounts(test))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Load(dir)
	assert.ErrorIs(t, err, os.ErrNotExist)

	writeBatches(t, dir)
	name := filepath.Join(dir, TestFile)
	require.NoError(t, os.WriteFile(name, batchFile(0)[:recordSize+10], 0644))
	_, _, err = Load(dir)
	assert.ErrorContains(t, err, "record 1")

	_, err = LoadBatch(filepath.Join(dir, TrainFiles[0]), []string{"only"})
	assert.ErrorContains(t, err, "invalid label 1")
}

func TestSplit(t *testing.T) {
	labels := make([]int32, 1000)
	images := make([]*img.Image, 1000)
	for i := range labels {
		// unbalanced classes: class k has 10*(k+1) + extra samples
		labels[i] = int32(i % NumClasses)
		if i > 550 {
			labels[i] = int32(i % 3)
		}
		images[i] = img.NewImage(2, 2, 3)
	}
	data := img.NewData(ClassNames, labels, images)
	rng := rand.New(rand.NewSource(1))
	train, valid := Split(data, 0.1, rng)
	assert.Equal(t, data.Len(), train.Len()+valid.Len())

	all, tc, vc := ClassCounts(data), ClassCounts(train), ClassCounts(valid)
	for k := range all {
		assert.Equal(t, all[k], tc[k]+vc[k])
		assert.InDelta(t, 0.1*float64(all[k]), vc[k], 1, "class %d", k)
	}
	seen := map[*img.Image]bool{}
	for _, m := range append(train.Images, valid.Images...) {
		require.False(t, seen[m])
		seen[m] = true
	}
	assert.Panics(t, func() { Split(data, 1, rng) })
}

func TestNormalisedStats(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	images := make([]*img.Image, 200)
	for i := range images {
		images[i] = img.NewImage(Width, Height, Channels)
		for j := range images[i].Pix {
			ch := j % Channels
			images[i].Pix[j] = Mean[ch] + StdDev[ch]*float32(rng.NormFloat64())
		}
	}
	data := img.NewData(ClassNames, make([]int32, 200), images)
	norm := data.SetTransformer(img.NewTransformer(img.Augment, Mean, StdDev, 0, rng))
	mean, std := norm.InputStats(200)
	for ch := 0; ch < Channels; ch++ {
		assert.InDelta(t, 0, mean[ch], 0.05)
		assert.InDelta(t, 1, std[ch], 0.05)
	}
}

func TestPrepareCache(t *testing.T) {
	src, dir := t.TempDir(), t.TempDir()
	writeBatches(t, src)
	train, test, err := Prepare(dir, src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, TrainCache))

	require.NoError(t, os.RemoveAll(src))
	train2, test2, err := Prepare(dir, src)
	require.NoError(t, err)
	assert.Equal(t, train.Labels, train2.Labels)
	assert.Equal(t, test.Images[5].Pix, test2.Images[5].Pix)
	assert.Equal(t, ClassNames, train2.Classes())
}

func tarball(t *testing.T, dir string) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "cifar-10-batches-bin/", Typeflag: tar.TypeDir, Mode: 0755}))
	for _, name := range append(TrainFiles, TestFile, MetaFile) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			data = []byte("x\n")
		} else {
			require.NoError(t, err)
		}
		hdr := &tar.Header{Name: "cifar-10-batches-bin/" + name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(data))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err = tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDownload(t *testing.T) {
	src := t.TempDir()
	writeBatches(t, src)
	archive := tarball(t, src)
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/cifar.tar.gz" {
			http.NotFound(w, r)
			return
		}
		w.Write(archive)
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "cifar-10")
	err := Download(context.Background(), srv.URL+"/missing", dir)
	assert.ErrorContains(t, err, "404")

	require.NoError(t, Download(context.Background(), srv.URL+"/cifar.tar.gz", dir))
	assert.True(t, Present(dir))
	assert.FileExists(t, filepath.Join(dir, MetaFile))
	require.NoError(t, Download(context.Background(), srv.URL+"/cifar.tar.gz", dir))
	assert.Equal(t, 2, requests)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Download(ctx, srv.URL+"/cifar.tar.gz", t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}
