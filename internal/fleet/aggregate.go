package fleet

import (
	"cmp"

	"cpfleet/internal/domain"
)

// Stats is the fleet-wide summary served by the stats endpoint. Extrema are
// nil when there is nothing to take them over: no trains, no running trains
// or no train reporting occupancy.
type Stats struct {
	Cancelled int `json:"cancelled"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Total     int `json:"total"`

	AvgSpeed float64 `json:"avgSpeed"`
	AvgDelay float64 `json:"avgDelay"`

	MaxDelay            *int `json:"maxDelay"`
	MaxRunningDelay     *int `json:"maxRunningDelay"`
	MaxAheadness        *int `json:"maxAheadness"`
	MaxRunningAheadness *int `json:"maxRunningAheadness"`

	MaxOccupancy                  *float64 `json:"maxOccupancy"`
	MinOccupancy                  *float64 `json:"minOccupancy"`
	TrainsSupportingOccupancyData int      `json:"trainsSupportingOccupancyData"`
}

// Summary is the result of one aggregation pass.
type Summary struct {
	Stats
	// RunningTrains keeps the input order.
	RunningTrains []domain.TrainStatus `json:"-"`
}

type extremes[T cmp.Ordered] struct {
	min, max T
	seen     bool
}

func (e *extremes[T]) observe(v T) {
	if !e.seen {
		e.min, e.max, e.seen = v, v, true
		return
	}
	e.min = min(e.min, v)
	e.max = max(e.max, v)
}

func (e *extremes[T]) bounds() (lo, hi *T) {
	if !e.seen {
		return nil, nil
	}
	lo, hi = new(T), new(T)
	*lo, *hi = e.min, e.max
	return lo, hi
}

// Aggregate computes the fleet statistics in a single forward pass.
func Aggregate(statuses []domain.TrainStatus) Summary {
	var (
		sum         Summary
		sumSpeed    float64
		sumDelay    int
		delays      extremes[int]
		runDelays   extremes[int]
		occupancies extremes[float64]
	)

	for _, s := range statuses {
		d := DelayOrZero(s)
		sumDelay += d
		delays.observe(d)

		switch {
		case s.IsCancelled():
			sum.Cancelled++
		case s.IsCompleted():
			sum.Completed++
		default:
			sum.Running++
			sumSpeed += SpeedOrZero(s)
			sum.RunningTrains = append(sum.RunningTrains, s)
			runDelays.observe(d)
		}

		if s.Occupancy != nil {
			occupancies.observe(*s.Occupancy)
			sum.TrainsSupportingOccupancyData++
		}
	}

	sum.Total = len(statuses)
	if sum.Running > 0 {
		sum.AvgSpeed = sumSpeed / float64(sum.Running)
	}
	if sum.Total > 0 {
		sum.AvgDelay = float64(sumDelay) / float64(sum.Total)
	}
	sum.MaxAheadness, sum.MaxDelay = delays.bounds()
	sum.MaxRunningAheadness, sum.MaxRunningDelay = runDelays.bounds()
	sum.MinOccupancy, sum.MaxOccupancy = occupancies.bounds()

	return sum
}
