package report

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// TrackPlot draws the true track as a line and the estimated positions as
// points.
func TrackPlot(title string, samples []Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title + " - Track"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	truePts := make(plotter.XYs, 0, len(samples))
	estPts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		estPts = append(estPts, plotter.XY{X: s.X, Y: s.Y})
		if s.HasTruth {
			truePts = append(truePts, plotter.XY{X: s.TrueX, Y: s.TrueY})
		}
	}

	if len(truePts) > 0 {
		trueLine, err := plotter.NewLine(truePts)
		if err != nil {
			return nil, err
		}
		trueLine.Color = plotutil.Color(0)
		trueLine.Width = vg.Points(1)
		p.Add(trueLine)
		p.Legend.Add("true", trueLine)
	}
	if len(estPts) > 0 {
		estScatter, err := plotter.NewScatter(estPts)
		if err != nil {
			return nil, err
		}
		estScatter.GlyphStyle.Color = plotutil.Color(1)
		estScatter.GlyphStyle.Radius = vg.Points(1)
		p.Add(estScatter)
		p.Legend.Add("estimate", estScatter)
	}
	p.Add(plotter.NewGrid())
	configureLegend(p)
	return p, nil
}

// AnglePlot draws the heading offset estimate with its two sigma band
// against the true offset.
func AnglePlot(title string, series Series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title + " - Heading Offset"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Angle (°)"
	p.Y.Min, p.Y.Max = series.AngleRange()

	n := len(series.AngleTime)
	est := make(plotter.XYs, n)
	upper := make(plotter.XYs, n)
	lower := make(plotter.XYs, n)
	for i, t := range series.AngleTime {
		est[i] = plotter.XY{X: t, Y: series.Angle[i]}
		upper[i] = plotter.XY{X: t, Y: series.Angle[i] + 2*series.AngleSD[i]}
		lower[i] = plotter.XY{X: t, Y: series.Angle[i] - 2*series.AngleSD[i]}
	}
	if n == 0 {
		return p, nil
	}

	estLine, err := plotter.NewLine(est)
	if err != nil {
		return nil, err
	}
	estLine.Color = plotutil.Color(1)
	estLine.Width = vg.Points(1)
	p.Add(estLine)
	p.Legend.Add("estimate", estLine)

	band := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for i, pts := range []plotter.XYs{upper, lower} {
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		l.Color = band
		l.Width = vg.Points(0.5)
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(l)
		if i == 0 {
			p.Legend.Add("±2σ", l)
		}
	}

	if len(series.TrueAngle) == n {
		truth := make(plotter.XYs, n)
		for i, t := range series.AngleTime {
			truth[i] = plotter.XY{X: t, Y: series.TrueAngle[i]}
		}
		trueLine, err := plotter.NewLine(truth)
		if err != nil {
			return nil, err
		}
		trueLine.Color = plotutil.Color(0)
		trueLine.Width = vg.Points(1)
		p.Add(trueLine)
		p.Legend.Add("true", trueLine)
	}
	p.Add(plotter.NewGrid())
	configureLegend(p)
	return p, nil
}

func configureLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

// SavePlots writes <prefix>_track.png and <prefix>_angle.png into dir and
// returns their paths.
func SavePlots(dir, prefix, title string, samples []Sample) ([]string, error) {
	series, err := NewSeries(samples, "mps")
	if err != nil {
		return nil, err
	}
	track, err := TrackPlot(title, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to build track plot: %w", err)
	}
	angle, err := AnglePlot(title, series)
	if err != nil {
		return nil, fmt.Errorf("failed to build angle plot: %w", err)
	}

	plots := []struct {
		name string
		p    *plot.Plot
	}{{"track", track}, {"angle", angle}}

	var paths []string
	for _, pl := range plots {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", prefix, pl.name))
		if err := pl.p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
