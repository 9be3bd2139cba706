package fleet

import (
	"strings"

	"cpfleet/internal/domain"
)

// ExcludeCompletedToken is the excludes token that drops completed trains.
const ExcludeCompletedToken = "completed"

// Excludes is the parsed form of the comma separated excludes query value.
type Excludes map[string]struct{}

// ParseExcludes splits raw on commas. Tokens are matched exactly; unknown
// tokens are kept but have no effect.
func ParseExcludes(raw string) Excludes {
	ex := Excludes{}
	if raw == "" {
		return ex
	}
	for _, tok := range strings.Split(raw, ",") {
		ex[tok] = struct{}{}
	}
	return ex
}

// Has reports whether token was requested.
func (ex Excludes) Has(token string) bool {
	_, ok := ex[token]
	return ok
}

// Apply removes the statuses ex asks to exclude, keeping relative order.
func (ex Excludes) Apply(statuses []domain.TrainStatus) []domain.TrainStatus {
	if !ex.Has(ExcludeCompletedToken) {
		return statuses
	}
	return WithoutCompleted(statuses)
}

// WithoutCompleted drops every completed train.
func WithoutCompleted(statuses []domain.TrainStatus) []domain.TrainStatus {
	result := make([]domain.TrainStatus, 0, len(statuses))
	for _, s := range statuses {
		if s.IsCompleted() {
			continue
		}
		result = append(result, s)
	}
	return result
}
