package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions(t *testing.T) {
	opts := &options{dataDir: "/tmp/cifar", models: []string{"resnet18", "cnn"}, epochs: 3, noFetch: true}
	cfg, err := opts.load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cifar", cfg.DataDir)
	assert.False(t, cfg.Download)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "resnet18", cfg.Models[0].Name)
	for _, m := range cfg.Models {
		assert.Equal(t, 3, m.Epochs)
	}

	_, err = (&options{models: []string{"vgg"}}).load()
	assert.ErrorContains(t, err, "vgg")
}

func TestLoadConfigFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(name, []byte("seed: 7\nmodels:\n  - name: alexnet\n    epochs: 5\n"), 0644))
	cfg, err := (&options{config: name, outDir: "out"}).load()
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "out", cfg.OutDir)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, 5, cfg.Models[0].Epochs)
}

func TestSummaryCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"summary", "--models", "cnn"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `Model: "cnn"`)
	assert.Contains(t, out.String(), "Total params:")
}
