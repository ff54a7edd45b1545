package geometry

import (
	"fmt"
	"strings"
)

// Undetermined is the medium id of a cell the fill has not resolved yet.
const Undetermined int32 = 0

// State of a medium.
type State uint8

const (
	Fluid State = iota
	Solid
)

func (s State) String() string {
	if s == Solid {
		return "Solid"
	}
	return "Fluid"
}

// Medium is one entry of the medium table. IDs are 1-based.
type Medium struct {
	ID    int32
	Label string
	State State
}

// MediumList is the read-only medium table, entry n holds ID n+1.
type MediumList []Medium

// NewMediumList builds a table, assigning IDs in order.
func NewMediumList(media ...Medium) MediumList {
	ml := make(MediumList, len(media))
	for n, m := range media {
		m.ID = int32(n + 1)
		ml[n] = m
	}
	return ml
}

// Lookup returns the medium with the given id.
func (ml MediumList) Lookup(id int32) (Medium, bool) {
	if id < 1 || int(id) > len(ml) {
		return Medium{}, false
	}
	return ml[id-1], true
}

// Find returns the medium with the given label, case insensitive.
func (ml MediumList) Find(label string) (Medium, error) {
	for _, m := range ml {
		if strings.EqualFold(m.Label, label) {
			return m, nil
		}
	}
	return Medium{}, fmt.Errorf("medium %q not in the medium table", label)
}

// IsSolid reports whether id names a solid medium.
func (ml MediumList) IsSolid(id int32) bool {
	m, ok := ml.Lookup(id)
	return ok && m.State == Solid
}

// IsFluid reports whether id names a fluid medium.
func (ml MediumList) IsFluid(id int32) bool {
	m, ok := ml.Lookup(id)
	return ok && m.State == Fluid
}

// SolidIDs returns the ids of the solid media in ascending order.
func (ml MediumList) SolidIDs() []int32 {
	var ids []int32
	for _, m := range ml {
		if m.State == Solid {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// PolygonGroup binds the polygons of one boundary entity to the solid medium
// they enclose.
type PolygonGroup struct {
	ID     int // 1..31, recorded in the boundary id field
	Label  string
	Medium int32
}
