package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteChart renders an HTML page with a speed chart and a heading offset
// chart. Speeds are shown in speedUnits.
func WriteChart(w io.Writer, title, speedUnits string, samples []Sample) error {
	series, err := NewSeries(samples, speedUnits)
	if err != nil {
		return err
	}

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(speedChart(title, speedUnits, series), angleChart(title, series))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// SaveChart writes the page rendered by WriteChart to path.
func SaveChart(path, title, speedUnits string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteChart(f, title, speedUnits, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func lineData(x, y []float64) []opts.LineData {
	data := make([]opts.LineData, 0, len(y))
	for i := range y {
		data = append(data, opts.LineData{Value: []interface{}{x[i], y[i]}})
	}
	return data
}

func offset(y, sd []float64, k float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] + k*sd[i]
	}
	return out
}

func newLineChart(title, subtitle, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: yName}),
	)
	return line
}

var plainLine = charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})

func speedChart(title, speedUnits string, s Series) *charts.Line {
	line := newLineChart(title+" - Speed", fmt.Sprintf("cycles=%d", len(s.Time)), "Speed ("+speedUnits+")")
	line.AddSeries("estimate", lineData(s.Time, s.Speed), plainLine)
	line.AddSeries("+2σ", lineData(s.Time, offset(s.Speed, s.SpeedSD, 2)), plainLine,
		charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Opacity: opts.Float(0.5)}))
	line.AddSeries("-2σ", lineData(s.Time, offset(s.Speed, s.SpeedSD, -2)), plainLine,
		charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Opacity: opts.Float(0.5)}))
	if len(s.TrueSpeed) == len(s.Time) {
		line.AddSeries("true", lineData(s.Time, s.TrueSpeed), plainLine)
	}
	return line
}

func angleChart(title string, s Series) *charts.Line {
	lo, hi := s.AngleRange()
	line := newLineChart(title+" - Heading Offset", fmt.Sprintf("filter cycles=%d", len(s.AngleTime)), "Angle (°)")
	line.SetGlobalOptions(charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Angle (°)", Min: lo, Max: hi}))
	line.AddSeries("estimate", lineData(s.AngleTime, s.Angle), plainLine)
	line.AddSeries("+2σ", lineData(s.AngleTime, offset(s.Angle, s.AngleSD, 2)), plainLine,
		charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Opacity: opts.Float(0.5)}))
	line.AddSeries("-2σ", lineData(s.AngleTime, offset(s.Angle, s.AngleSD, -2)), plainLine,
		charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Opacity: opts.Float(0.5)}))
	if len(s.TrueAngle) == len(s.AngleTime) {
		line.AddSeries("true", lineData(s.AngleTime, s.TrueAngle), plainLine)
	}
	return line
}
