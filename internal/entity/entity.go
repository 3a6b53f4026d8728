// Package entity holds the timestamp pair embedded by persisted records.
package entity

import "time"

// Entity carries creation and modification times.
type Entity struct {
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// New returns an Entity with both timestamps set to now in UTC.
func New() Entity {
	return At(time.Now())
}

// At returns an Entity stamped with t in UTC.
func At(t time.Time) Entity {
	t = t.UTC()
	return Entity{CreatedAt: t, UpdatedAt: t}
}

// Touch advances UpdatedAt to t.
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t.UTC()
}
