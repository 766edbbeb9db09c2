package direction

import (
	"strings"

	"github.com/banshee-data/heading/internal/filter/core"
	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/filter/stats"
	"github.com/banshee-data/heading/internal/units"
)

// Nees accumulates normalized estimation error squared against ground
// truth.
type Nees struct {
	Position stats.NormalizedSquared
	Speed    stats.NormalizedSquared
	Angle    stats.NormalizedSquared
}

func (n *Nees) add(f Filter, truth *measurement.TrueData) {
	if truth == nil {
		return
	}
	position := f.Position()
	n.Position.Add([]float64{truth.Position.X - position.X, truth.Position.Y - position.Y}, f.PositionP())
	if v := f.SpeedP(); v > 0 {
		n.Speed.Add1(truth.Speed-f.Speed(), v)
	}
	n.Angle.Add1(units.AngleDifference(truth.Angle, f.Angle()), f.AngleP())
}

// Nis accumulates normalized innovation squared of accepted updates.
type Nis struct {
	Position               stats.NormalizedSquared
	PositionSpeedDirection stats.NormalizedSquared
	// Innovation covers every accepted update whatever its modality.
	Innovation stats.NormalizedSquared
}

func (n *Nis) addPosition(info core.UpdateInfo) {
	if n == nil || info.Gate || info.NIS == nil {
		return
	}
	n.Position.AddDOF(*info.NIS, info.Dim())
}

func (n *Nis) addPositionSpeedDirection(info core.UpdateInfo) {
	if n == nil || info.Gate || info.NIS == nil {
		return
	}
	n.PositionSpeedDirection.AddDOF(*info.NIS, info.Dim())
}

func (n *Nis) addInnovation(info core.UpdateInfo) {
	if n == nil || info.Gate || info.NIS == nil {
		return
	}
	n.Innovation.AddDOF(*info.NIS, info.Dim())
}

// Metric is a named consistency accumulator.
type Metric struct {
	Name  string
	Stats *stats.NormalizedSquared
}

// ConsistencyMetrics returns the non-empty accumulators in report order.
func ConsistencyMetrics(nees *Nees, nis *Nis) []Metric {
	var metrics []Metric
	add := func(name string, s *stats.NormalizedSquared) {
		if !s.Empty() {
			metrics = append(metrics, Metric{Name: name, Stats: s})
		}
	}
	if nees != nil {
		add("NEES Position", &nees.Position)
		add("NEES Speed", &nees.Speed)
		add("NEES Angle", &nees.Angle)
	}
	if nis != nil {
		add("NIS Position", &nis.Position)
		add("NIS Position Speed Direction", &nis.PositionSpeedDirection)
		add("NIS", &nis.Innovation)
	}
	return metrics
}

// ConsistencyString formats the non-empty accumulators one per line.
func ConsistencyString(nees *Nees, nis *Nis) string {
	var lines []string
	for _, m := range ConsistencyMetrics(nees, nis) {
		lines = append(lines, m.Name+"; "+m.Stats.String())
	}
	return strings.Join(lines, "\n")
}
