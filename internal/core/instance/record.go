// Package instance keeps the authoritative set of world-placed object records
// and delegates their live representation to per-type strategies.
package instance

import (
	"fmt"

	"github.com/google/uuid"
)

// ObjectType tags a record with the kind of world object it describes.
type ObjectType string

const (
	Item         ObjectType = "item"
	BuildingPart ObjectType = "building_part"
	Tree         ObjectType = "tree"
	Rock         ObjectType = "rock"
	Resource     ObjectType = "resource"
	Structure    ObjectType = "structure"
	POI          ObjectType = "poi"
	CaveEntrance ObjectType = "cave_entrance"
	OreVein      ObjectType = "ore_vein"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotator is an orientation in degrees.
type Rotator struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

type Transform struct {
	Location Vec3    `json:"location"`
	Rotation Rotator `json:"rotation"`
	Scale    Vec3    `json:"scale"`
}

// IdentityTransform is placed at the origin with unit scale.
var IdentityTransform = Transform{Scale: Vec3{X: 1, Y: 1, Z: 1}}

// Record describes a placed object independently of whether a live actor
// currently exists for it. It is also the unit persisted by stores.
type Record struct {
	ID        uuid.UUID  `json:"id"`
	Type      ObjectType `json:"type"`
	DataKey   string     `json:"data_key"`
	Quantity  int32      `json:"quantity"`
	Transform Transform  `json:"transform"`
}

// Validate checks the fields every stored record must carry.
func (r Record) Validate() error {
	switch {
	case r.ID == uuid.Nil:
		return fmt.Errorf("%w: nil id", ErrInvalidRecord)
	case r.Type == "":
		return fmt.Errorf("%w: %s has no object type", ErrInvalidRecord, r.ID)
	case r.Quantity < 0:
		return fmt.Errorf("%w: %s has negative quantity %d", ErrInvalidRecord, r.ID, r.Quantity)
	}
	return nil
}

// Depleted reports whether nothing is left to harvest or pick up.
func (r Record) Depleted() bool {
	return r.Quantity == 0
}
