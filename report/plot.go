// Package report renders the training history plots, summary tables and sample images.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
)

// Size of the saved PNG plots
var (
	PlotWidth  = 6 * vg.Inch
	PlotHeight = 4 * vg.Inch
)

// Metric selects the pair of training and validation series drawn on a plot
type Metric int

const (
	Accuracy Metric = iota
	Loss
)

func (m Metric) String() string {
	if m == Loss {
		return "loss"
	}
	return "accuracy"
}

func (m Metric) values(s nnet.Stats) (train, valid float64) {
	if m == Loss {
		return s.Loss, s.ValidLoss
	}
	return s.Accuracy, s.ValidAccuracy
}

// NewPlot creates an empty plot with a grid and the legend at the top
func NewPlot(title, xlabel, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.X.Padding, p.Y.Padding = 0, 0
	p.X.Tick.Label.Font.Size = vg.Points(10)
	p.Y.Tick.Label.Font.Size = vg.Points(10)
	p.Legend.Top = true
	p.Legend.TextStyle.Font.Size = vg.Points(12)
	p.Add(plotter.NewGrid())
	return p
}

// HistoryPlot draws the training and validation curves of the metric against the epoch.
func HistoryPlot(model string, history []nnet.Stats, m Metric) (*plot.Plot, error) {
	p := NewPlot(fmt.Sprintf("%s model %s", model, m), "epoch", m.String())
	var train, valid plotter.XYs
	for _, s := range history {
		t, v := m.values(s)
		train = append(train, plotter.XY{X: float64(s.Epoch), Y: t})
		valid = append(valid, plotter.XY{X: float64(s.Epoch), Y: v})
	}
	ymax := 1.0
	if m == Loss {
		ymax = 0
		for i := range train {
			ymax = max(ymax, train[i].Y, valid[i].Y)
		}
	}
	for i, series := range []struct {
		name string
		pts  plotter.XYs
	}{{"train", train}, {"validation", valid}} {
		line, err := newLinePlot(series.pts, i, ymax)
		if err != nil {
			return nil, err
		}
		p.Add(line)
		p.Legend.Add(series.name, line)
	}
	return p, nil
}

// SaveHistory writes <model>_accuracy.png and <model>_loss.png to dir and returns the file names.
func SaveHistory(dir, model string, history []nnet.Stats) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	var files []string
	for _, m := range []Metric{Accuracy, Loss} {
		p, err := HistoryPlot(model, history, m)
		if err != nil {
			return files, fmt.Errorf("%s %s plot: %w", model, m, err)
		}
		name := filepath.Join(dir, fmt.Sprintf("%s_%s.png", model, m))
		if err = p.Save(PlotWidth, PlotHeight, name); err != nil {
			return files, fmt.Errorf("error saving %s: %w", name, err)
		}
		files = append(files, name)
	}
	return files, nil
}

// SVG renders the plot with the given size in pixels, at 72 dpi one pixel is one point.
func SVG(p *plot.Plot, width, height int) ([]byte, error) {
	w, err := p.WriterTo(vg.Points(float64(width)), vg.Points(float64(height)), "svg")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err = w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newLinePlot(pts plotter.XYs, ix int, ymax float64) (linePlot, error) {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return linePlot{}, err
	}
	l.Width = vg.Points(2)
	l.Color = plotutil.Color(ix)
	xmax := 1.0
	for _, pt := range pts {
		xmax = max(xmax, pt.X)
	}
	return linePlot{Line: l, xmin: 1, xmax: xmax, ymin: 0, ymax: ymax}, nil
}

// plotter.Line with a fixed scale
type linePlot struct {
	*plotter.Line
	xmin, xmax, ymin, ymax float64
}

func (l linePlot) DataRange() (xmin, xmax, ymin, ymax float64) {
	return l.xmin, l.xmax, l.ymin, l.ymax
}
