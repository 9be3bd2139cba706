package domain

// Train status values reported by the realtime API. Any other value is a
// running state.
const (
	StatusCancelled = "CANCELLED"
	StatusCompleted = "COMPLETED"
)

// Entity is the code/designation pair the travel API uses for services and
// stations.
type Entity struct {
	Code        string `json:"code"`
	Designation string `json:"designation"`
}

// StaticTrain is the schedule-level record for one train number.
type StaticTrain struct {
	TrainNumber      int    `json:"trainNumber"`
	TrainService     Entity `json:"trainService"`
	TrainOrigin      Entity `json:"trainOrigin"`
	TrainDestination Entity `json:"trainDestination"`
}

// TrainStatus is the live operational state of a train.
type TrainStatus struct {
	TrainNumber    int      `json:"trainNumber"`
	RunDate        string   `json:"runDate"`
	Delay          *int     `json:"delay"`
	Speed          *float64 `json:"speed"`
	Occupancy      *float64 `json:"occupancy"`
	LastStation    *string  `json:"lastStation"`
	LastDependency *string  `json:"lastDependency"`
	Latitude       *string  `json:"latitude"`
	Longitude      *string  `json:"longitude"`
	Source         string   `json:"source"`
	Status         string   `json:"status"`
	HasDisruptions *bool    `json:"hasDisruptions"`
	Units          []string `json:"units"`
}

// IsCancelled reports whether the train will not run.
func (s TrainStatus) IsCancelled() bool { return s.Status == StatusCancelled }

// IsCompleted reports whether the train reached its destination.
func (s TrainStatus) IsCompleted() bool { return s.Status == StatusCompleted }

// IsRunning reports whether the train is neither cancelled nor completed.
func (s TrainStatus) IsRunning() bool { return !s.IsCancelled() && !s.IsCompleted() }

// StopInfo holds the realtime times for one stop of a train.
type StopInfo struct {
	Arrival   string `json:"arrival,omitempty"`
	Departure string `json:"departure,omitempty"`
	ArrDelay  *int   `json:"arrDelay,omitempty"`
	DepDelay  *int   `json:"depDelay,omitempty"`
}

// TrainDetails is the per-train envelope returned by the realtime details
// endpoint. Status is nil when the operator has no live data for the train.
type TrainDetails struct {
	Status    *TrainStatus        `json:"status,omitempty"`
	Stops     map[string]StopInfo `json:"stops,omitempty"`
	Platforms map[string]string   `json:"platforms,omitempty"`
}

// Station is the travel API station record. Fields outside this struct are
// not forwarded.
type Station struct {
	Code        string   `json:"code"`
	Designation string   `json:"designation"`
	Latitude    string   `json:"latitude"`
	Longitude   string   `json:"longitude"`
	Region      *string  `json:"region"`
	Railways    []string `json:"railways"`
}
