package fleet

import "cpfleet/internal/domain"

// Index maps train numbers to their static schedule record. Later entries
// replace earlier ones with the same train number.
type Index map[int]domain.StaticTrain

// NewIndex builds the lookup used by Enrich.
func NewIndex(trains []domain.StaticTrain) Index {
	idx := make(Index, len(trains))
	for _, t := range trains {
		idx[t.TrainNumber] = t
	}
	return idx
}

// Enrich attaches service, origin and destination to every status with a
// static counterpart. Statuses without one are passed through as-is.
func Enrich(statuses []domain.TrainStatus, idx Index) []domain.Vehicle {
	result := make([]domain.Vehicle, 0, len(statuses))
	for _, s := range statuses {
		result = append(result, idx.Apply(domain.Vehicle{TrainStatus: s}))
	}
	return result
}

// Apply returns v with the schedule fields of its static match. Applying the
// same index twice yields the same record.
func (idx Index) Apply(v domain.Vehicle) domain.Vehicle {
	match, ok := idx[v.TrainNumber]
	if !ok {
		return v
	}

	service := match.TrainService
	origin := match.TrainOrigin
	destination := match.TrainDestination
	v.Service = &service
	v.Origin = &origin
	v.Destination = &destination
	return v
}
