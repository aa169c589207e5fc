package plot

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/edp1096/ppe-sim/pkg/util"
)

// Trace is a set of sampled columns over a common time axis.
type Trace struct {
	Title  string
	Time   []float64
	Names  []string
	Series map[string][]float64
}

// FromResults picks the "TIME" key and the given columns out of an analysis result map.
// Columns missing from the map are skipped.
func FromResults(title string, results map[string][]float64, columns []string) Trace {
	tr := Trace{
		Title:  title,
		Time:   results["TIME"],
		Series: make(map[string][]float64, len(columns)),
	}
	for _, name := range columns {
		v, ok := results[name]
		if !ok || len(v) != len(tr.Time) {
			continue
		}
		tr.Names = append(tr.Names, name)
		tr.Series[name] = v
	}
	return tr
}

func (tr Trace) check() error {
	if len(tr.Time) == 0 || len(tr.Names) == 0 {
		return fmt.Errorf("trace %q has no samples", tr.Title)
	}
	return nil
}

// PNG draws every column into one image at path.
func PNG(tr Trace, path string) error {
	if err := tr.check(); err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = tr.Title
	p.X.Label.Text = "time [s]"
	p.Add(plotter.NewGrid())

	for i, name := range tr.Names {
		pts := make(plotter.XYs, len(tr.Time))
		for k, t := range tr.Time {
			pts[k].X = t
			pts[k].Y = tr.Series[name][k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plotting %s: %w", name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// HTML renders one zoomable line chart per column into a single page.
func HTML(tr Trace, w io.Writer) error {
	if err := tr.check(); err != nil {
		return err
	}

	axis := make([]string, len(tr.Time))
	for k, t := range tr.Time {
		axis[k] = util.FormatValueFactor(t, "s")
	}

	page := components.NewPage()
	page.PageTitle = tr.Title
	for _, name := range tr.Names {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				Theme: types.ThemeWesteros,
			}),
			charts.WithTitleOpts(opts.Title{
				Title:    name,
				Subtitle: tr.Title,
			}),
			charts.WithYAxisOpts(opts.YAxis{
				Scale: opts.Bool(true),
			}),
			charts.WithTooltipOpts(opts.Tooltip{
				Show:    opts.Bool(true),
				Trigger: "axis",
			}),
			charts.WithDataZoomOpts(opts.DataZoom{
				Type:       "inside",
				Start:      0,
				End:        100,
				XAxisIndex: []int{0},
			}),
		)

		data := make([]opts.LineData, len(tr.Time))
		for k, v := range tr.Series[name] {
			data[k] = opts.LineData{Value: v}
		}
		line.SetXAxis(axis).AddSeries(name, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
		page.AddCharts(line)
	}
	return page.Render(w)
}
