// Package fleet holds the request-scoped logic applied to one snapshot of the
// fleet: statistics, schedule enrichment and status filtering.
package fleet

import (
	"slices"

	"cpfleet/internal/domain"
)

// DelayOrZero is the missing-delay policy shared by every computation that
// needs a numeric delay. Enrichment never applies it; a null delay is
// reported as null.
func DelayOrZero(s domain.TrainStatus) int {
	if s.Delay == nil {
		return 0
	}
	return *s.Delay
}

// SpeedOrZero is the missing-speed policy used for average speed.
func SpeedOrZero(s domain.TrainStatus) float64 {
	if s.Speed == nil {
		return 0
	}
	return *s.Speed
}

// Statuses extracts the status of every envelope that has one. Envelopes are
// visited in ascending train number order.
func Statuses(details map[int]domain.TrainDetails) []domain.TrainStatus {
	numbers := make([]int, 0, len(details))
	for n := range details {
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)

	result := make([]domain.TrainStatus, 0, len(numbers))
	for _, n := range numbers {
		if st := details[n].Status; st != nil {
			result = append(result, *st)
		}
	}
	return result
}

// TrainNumbers returns the distinct train numbers of the static list in
// first-seen order.
func TrainNumbers(trains []domain.StaticTrain) []int {
	seen := make(map[int]struct{}, len(trains))
	result := make([]int, 0, len(trains))
	for _, t := range trains {
		if _, ok := seen[t.TrainNumber]; ok {
			continue
		}
		seen[t.TrainNumber] = struct{}{}
		result = append(result, t.TrainNumber)
	}
	return result
}
