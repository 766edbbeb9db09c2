// Package queue keeps a bounded, time-ordered history of measurements so a
// heading filter can be re-initialised and replayed after a gap.
package queue

import (
	"math"

	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/monitoring"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// snapshot is an estimator state recorded next to a measurement.
type snapshot struct {
	x [4]float64
	p *mat.SymDense
}

type entry struct {
	m        measurement.Measurements
	snapshot *snapshot
}

// Queue is a bounded measurement history. Entries are in time order and no
// two entries are further than the reset interval apart.
type Queue struct {
	size                    int
	resetDT                 float64
	angleEstimationVariance float64
	entries                 []entry
}

// New returns an empty queue of at most size entries. Entries older than
// resetDT relative to a new measurement are discarded. An estimator
// snapshot is kept with a position entry when the estimator's direction
// variance is at most angleEstimationVariance, and the queue can
// initialise a filter only once it holds such a snapshot.
func New(size int, resetDT, angleEstimationVariance float64) *Queue {
	if size < 1 {
		monitoring.Fatalf("measurement queue: size %d must be positive", size)
	}
	if !(resetDT > 0) {
		monitoring.Fatalf("measurement queue: reset interval %v must be positive", resetDT)
	}
	if !(angleEstimationVariance >= 0) {
		monitoring.Fatalf("measurement queue: angle estimation variance %v must not be negative", angleEstimationVariance)
	}
	return &Queue{
		size:                    size,
		resetDT:                 resetDT,
		angleEstimationVariance: angleEstimationVariance,
		entries:                 make([]entry, 0, size),
	}
}

// Update appends m, annotated with a snapshot of est when est is precise
// enough. est may be nil.
func (q *Queue) Update(m measurement.Measurements, est measurement.Estimation) {
	if !m.HasUsableData() {
		return
	}
	if n := len(q.entries); n > 0 {
		last := q.entries[n-1].m.Time
		if !(m.Time > last) {
			monitoring.Fatalf("measurement queue: time does not increase; from %v to %v", last, m.Time)
		}
		if m.Time-last >= q.resetDT {
			q.entries = q.entries[:0]
		}
	}

	e := entry{m: m}
	if m.Position.Usable() && est != nil && !est.Empty() && est.AngleP() <= q.angleEstimationVariance {
		p := mat.NewSymDense(4, nil)
		p.CopySym(est.PositionVelocityP())
		e.snapshot = &snapshot{x: est.PositionVelocity(), p: p}
	}

	q.entries = append(q.entries, e)
	if len(q.entries) > q.size {
		q.entries = append(q.entries[:0], q.entries[len(q.entries)-q.size:]...)
	}
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Empty reports whether the queue cannot initialise a filter yet: no entry
// carries an estimator snapshot, so the direction of motion is unknown.
func (q *Queue) Empty() bool {
	for _, e := range q.entries {
		if e.snapshot != nil {
			return false
		}
	}
	return true
}

// LastTime returns the time of the newest entry.
func (q *Queue) LastTime() float64 {
	if len(q.entries) == 0 {
		monitoring.Fatalf("measurement queue: no entries")
	}
	return q.entries[len(q.entries)-1].m.Time
}

// InitPositionVelocity returns the initial px, vx, py, vy for a filter
// reset.
func (q *Queue) InitPositionVelocity() [4]float64 {
	x, _ := q.initial()
	return x
}

// InitPositionVelocityP returns the covariance matching
// InitPositionVelocity.
func (q *Queue) InitPositionVelocityP() *mat.SymDense {
	_, p := q.initial()
	return p
}

// UpdateFilter calls reset once and then replay for each entry after the
// oldest position entry, in time order, with the time since the previous
// replayed entry. position is nil for entries without a usable position.
// The reset state is that of the oldest position entry, so every later
// entry reaches the filter.
func (q *Queue) UpdateFilter(reset func(), replay func(position *measurement.Measurement[r2.Vec], m measurement.Measurements, dt float64)) {
	if q.Empty() {
		monitoring.Fatalf("measurement queue: no estimator snapshot to initialise from")
	}
	first := q.firstPosition()

	reset()

	last := q.entries[first].m.Time
	for _, e := range q.entries[first+1:] {
		dt := e.m.Time - last
		last = e.m.Time
		var position *measurement.Measurement[r2.Vec]
		if p, ok := e.m.UsablePosition(); ok {
			position = &p
		}
		replay(position, e.m, dt)
	}
}

func (q *Queue) firstPosition() int {
	for i, e := range q.entries {
		if e.m.Position.Usable() {
			return i
		}
	}
	return -1
}

func (q *Queue) nextPosition(after int) int {
	for i := after + 1; i < len(q.entries); i++ {
		if q.entries[i].m.Position.Usable() {
			return i
		}
	}
	return -1
}

// initial derives the reset state at the oldest position entry: its
// snapshot if it has one, otherwise a finite difference with the next
// position entry. A snapshot entry is itself a position entry, so a queue
// that is not empty always has one of the two.
func (q *Queue) initial() ([4]float64, *mat.SymDense) {
	if q.Empty() {
		monitoring.Fatalf("measurement queue: no estimator snapshot to initialise from")
	}
	first := q.firstPosition()
	e := q.entries[first]
	if e.snapshot != nil {
		p := mat.NewSymDense(4, nil)
		p.CopySym(e.snapshot.p)
		return e.snapshot.x, p
	}

	p0 := e.m.Position.Measurement()
	x := [4]float64{p0.Value.X, 0, p0.Value.Y, 0}
	p := mat.NewSymDense(4, nil)
	p.SetSym(0, 0, p0.Variance.X)
	p.SetSym(2, 2, p0.Variance.Y)

	next := q.nextPosition(first)
	p1 := q.entries[next].m.Position.Measurement()
	dt := q.entries[next].m.Time - e.m.Time
	x[1] = (p1.Value.X - p0.Value.X) / dt
	x[3] = (p1.Value.Y - p0.Value.Y) / dt
	p.SetSym(1, 1, (p0.Variance.X+p1.Variance.X)/(dt*dt))
	p.SetSym(3, 3, (p0.Variance.Y+p1.Variance.Y)/(dt*dt))
	p.SetSym(0, 1, -p0.Variance.X/dt)
	p.SetSym(2, 3, -p0.Variance.Y/dt)

	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			monitoring.Fatalf("measurement queue: initial state is not finite: %v", x)
		}
	}
	return x, p
}
