package domain

// Vehicle is a realtime status optionally enriched with the schedule fields of
// the matching static train. The schedule fields are omitted when no static
// record exists for the train number.
type Vehicle struct {
	TrainStatus
	Service     *Entity `json:"service,omitempty"`
	Origin      *Entity `json:"origin,omitempty"`
	Destination *Entity `json:"destination,omitempty"`
}

// Enriched reports whether schedule fields were attached.
func (v Vehicle) Enriched() bool {
	return v.Service != nil
}
