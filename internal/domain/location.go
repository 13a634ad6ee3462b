package domain

import (
	"fmt"
	"time"
)

type LocationType string

const (
	LocationPlant  LocationType = "plant"
	LocationLitter LocationType = "litter"
)

func (t LocationType) Valid() bool {
	return t == LocationPlant || t == LocationLitter
}

// ParseLocationType accepts the empty string as "no filter".
func ParseLocationType(s string) (LocationType, error) {
	t := LocationType(s)
	if s == "" || t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown location type %q", s)
}

// Location is a single observation. Synced is client-side bookkeeping and is
// never stored by the server; CreatedAt/UpdatedAt are server audit fields.
type Location struct {
	ID        int64        `json:"id" validate:"gt=0"`
	Type      LocationType `json:"type" validate:"location_type"`
	Note      string       `json:"note" validate:"notblank"`
	Lat       float64      `json:"latitude" validate:"finite,lat"`
	Lng       float64      `json:"longitude" validate:"finite,lng"`
	Timestamp time.Time    `json:"timestamp"`
	Address   *string      `json:"address,omitempty"`
	Synced    bool         `json:"synced,omitempty"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

// LocationPatch carries the mutable fields of a partial update. Nil means "leave as is".
type LocationPatch struct {
	Note    *string `json:"note" validate:"omitempty,notblank"`
	Address *string `json:"address"`
}

func (p LocationPatch) Empty() bool {
	return p.Note == nil && p.Address == nil
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type ListFilter struct {
	Type   LocationType
	Limit  int
	Offset int
}

// Normalize applies DefaultListLimit to an unset limit, caps it at
// MaxListLimit and clears a negative offset.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type NearbyQuery struct {
	Lat     float64      `validate:"finite,lat"`
	Lng     float64      `validate:"finite,lng"`
	RadiusM float64      `validate:"finite,gte=0"`
	Type    LocationType `validate:"omitempty,location_type"`
}

// NearbyLocation is a Location annotated with its great-circle distance in meters.
type NearbyLocation struct {
	Location
	DistanceM float64 `json:"distance"`
}
