package trajectory

import (
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// WritePNG draws the raw positions as points, the smoothed path as a line
// and the sniffers as triangles.
func (t *Track) WritePNG(w io.Writer, layout scavenger.Layout) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trajectory of %s", t.ClaimedID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	raw, err := plotter.NewScatter(xys(t.Raw))
	if err != nil {
		return err
	}
	raw.Color = color.RGBA{R: 200, G: 80, B: 80, A: 255}
	raw.Radius = vg.Points(2)
	p.Add(raw)
	p.Legend.Add("estimated", raw)

	// A single point cannot form a line.
	if len(t.Smoothed) > 1 {
		line, err := plotter.NewLine(xys(t.Smoothed))
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 40, G: 90, B: 200, A: 255}
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("smoothed", line)
	}

	if len(layout) > 0 {
		pts := make(plotter.XYs, 0, len(layout))
		for _, id := range sortedSniffers(layout) {
			pts = append(pts, plotter.XY{X: layout[id].X, Y: layout[id].Y})
		}
		sniffers, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		sniffers.Shape = draw.TriangleGlyph{}
		sniffers.Color = color.Black
		p.Add(sniffers)
		p.Legend.Add("sniffers", sniffers)
	}

	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// WriteHTML renders an interactive chart of the track.
func (t *Track) WriteHTML(w io.Writer, layout scavenger.Layout) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Device trajectory", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectory", Subtitle: fmt.Sprintf("claimed_id=%s aliases=%d points=%d", t.ClaimedID, len(t.Aliases), len(t.Raw))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("estimated", scatterData(t.Raw), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	if len(layout) > 0 {
		data := make([]opts.ScatterData, 0, len(layout))
		for _, id := range sortedSniffers(layout) {
			data = append(data, opts.ScatterData{Name: id, Value: []interface{}{layout[id].X, layout[id].Y}, Symbol: "triangle"})
		}
		scatter.AddSeries("sniffers", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	}

	line := charts.NewLine()
	lineData := make([]opts.LineData, 0, len(t.Smoothed))
	for _, p := range t.Smoothed {
		lineData = append(lineData, opts.LineData{Value: []interface{}{p.Position.X, p.Position.Y}})
	}
	line.AddSeries("smoothed", lineData)
	scatter.Overlap(line)

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

func xys(points []Point) plotter.XYs {
	out := make(plotter.XYs, len(points))
	for i, p := range points {
		out[i] = plotter.XY{X: p.Position.X, Y: p.Position.Y}
	}
	return out
}

func scatterData(points []Point) []opts.ScatterData {
	out := make([]opts.ScatterData, len(points))
	for i, p := range points {
		out[i] = opts.ScatterData{Name: p.ClaimedID, Value: []interface{}{p.Position.X, p.Position.Y}}
	}
	return out
}

func sortedSniffers(layout scavenger.Layout) []string {
	r := make(scavenger.Readings, len(layout))
	for id := range layout {
		r[id] = nil
	}
	return r.Sniffers()
}
