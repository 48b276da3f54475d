package board

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
)

// ErrNoSamples is returned when there is nothing to export.
var ErrNoSamples = errors.New("no samples to export")

// WriteCSV writes one row per sample with a column per symbol.
func WriteCSV(path, base string, samples []Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	symbols := symbolsOf(samples)

	header := append([]string{"timestamp", "base"}, symbols...)
	header = append(header, "error")
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		row := make([]string, 0, len(header))
		row = append(row, sample.At.Format(time.RFC3339), base)
		for _, sym := range symbols {
			if rate, ok := sample.Rates[sym]; ok {
				row = append(row, rate.String())
			} else {
				row = append(row, "")
			}
		}
		row = append(row, sanitizeInline(sample.Err))
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WritePNG renders a line per symbol. Failed samples are skipped.
func WritePNG(path, base string, samples []Sample) error {
	ok := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Err == "" && len(s.Rates) > 0 {
			ok = append(ok, s)
		}
	}
	if len(ok) < 2 {
		return errors.New("at least two successful samples are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	series := make([]chart.Series, 0)
	for _, sym := range symbolsOf(ok) {
		var x []time.Time
		var y []float64
		for _, s := range ok {
			rate, found := s.Rates[sym]
			if !found {
				continue
			}
			x = append(x, s.At)
			y = append(y, rate.InexactFloat64())
		}
		if len(x) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name:    base + "/" + sym,
			XValues: x,
			YValues: y,
		})
	}
	if len(series) == 0 {
		return errors.New("no symbol has enough samples to draw")
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate (per 1 " + base + ")",
			ValueFormatter: rateFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
