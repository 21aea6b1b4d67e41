package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/nnet"
	"github.com/EdwardQuah/CNN-Classification-CIFAR10/stats"
)

// Row has the outcome of training one model
type Row struct {
	Model        string
	Params       int
	Trainable    int
	Epochs       int
	BestEpoch    int
	TestLoss     float64
	TestAccuracy float64
	Duration     time.Duration
	EpochTime    *stats.Average
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	return table
}

// Shape formats dimensions the way the model summary prints them, with the batch axis as None.
func Shape(dims []int) string {
	s := []string{"None"}
	for _, d := range dims[1:] {
		s = append(s, strconv.Itoa(d))
	}
	return "(" + strings.Join(s, ", ") + ")"
}

// Summary prints the layers of the network with their output shape and parameter count.
func Summary(w io.Writer, model string, net *nnet.Network) {
	fmt.Fprintf(w, "Model: %q\n", model)
	table := newTable(w, "Layer (type)", "Output Shape", "Param #")
	for _, l := range net.Summary() {
		table.Append([]string{l.Name, Shape(l.OutShape), strconv.Itoa(l.Params)})
	}
	table.Render()
	total, trainable := net.NumParams()
	fmt.Fprintf(w, "Total params: %d\nTrainable params: %d\nNon-trainable params: %d\n", total, trainable, total-trainable)
}

// Compare prints one line per trained model.
func Compare(w io.Writer, rows []Row) {
	table := newTable(w, "model", "params", "epochs", "best", "test loss", "test accuracy", "epoch time", "run time")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	for _, r := range rows {
		epochTime := "-"
		if r.EpochTime != nil && r.EpochTime.Count > 0 {
			epochTime = fmt.Sprintf("%.1fs", r.EpochTime.Mean)
		}
		table.Append([]string{
			r.Model,
			strconv.Itoa(r.Params),
			strconv.Itoa(r.Epochs),
			strconv.Itoa(r.BestEpoch),
			fmt.Sprintf("%.4f", r.TestLoss),
			fmt.Sprintf("%.2f%%", 100*r.TestAccuracy),
			epochTime,
			r.Duration.Round(time.Second).String(),
		})
	}
	table.Render()
}

// Distribution prints the number of samples of each class in each named split.
func Distribution(w io.Writer, classes []string, splits []string, counts ...[]int) {
	if len(splits) != len(counts) {
		panic(fmt.Sprintf("Distribution: %d split names for %d count lists", len(splits), len(counts)))
	}
	table := newTable(w, append([]string{"class"}, splits...)...)
	totals := make([]int, len(counts))
	for i, name := range classes {
		row := []string{name}
		for j, c := range counts {
			row = append(row, strconv.Itoa(c[i]))
			totals[j] += c[i]
		}
		table.Append(row)
	}
	footer := []string{"total"}
	for _, n := range totals {
		footer = append(footer, strconv.Itoa(n))
	}
	table.SetFooter(footer)
	table.SetFooterAlignment(tablewriter.ALIGN_LEFT)
	table.Render()
}

// History prints the per epoch statistics.
func History(w io.Writer, history []nnet.Stats) {
	table := newTable(w, append([]string{"epoch"}, nnet.StatsHeaders()...)...)
	for _, s := range history {
		table.Append(append([]string{strconv.Itoa(s.Epoch)}, s.Format()...))
	}
	table.Render()
}
