package cifar

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultURL is the location of the binary version of the data set
const DefaultURL = "https://www.cs.toronto.edu/~kriz/cifar-10-binary.tar.gz"

// Present checks if all of the batch files exist in dir
func Present(dir string) bool {
	for _, name := range append(TrainFiles, TestFile) {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Download fetches the gzipped tar archive from url and extracts the batch files into dir.
// It does nothing if the files are already present.
func Download(ctx context.Context, url, dir string) error {
	if Present(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	slog.Info("downloading", "url", url, "dir", dir)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	n, err := Extract(resp.Body, dir)
	if err != nil {
		return err
	}
	slog.Info("extracted files", "count", n)
	if !Present(dir) {
		return fmt.Errorf("archive from %s does not contain the cifar-10 batch files", url)
	}
	return nil
}

// Extract unpacks the regular files from a gzipped tar stream into dir, discarding the directory names.
func Extract(r io.Reader, dir string) (files int, err error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("error reading archive: %w", err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("error reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		if err := writeFile(filepath.Join(dir, name), tr); err != nil {
			return files, err
		}
		files++
	}
}

func writeFile(pathName string, r io.Reader) error {
	f, err := os.Create(pathName)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", pathName, err)
	}
	return f.Close()
}
