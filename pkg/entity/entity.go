// Package entity defines the closed set of participant types in the network.
package entity

import (
	"errors"
	"strings"
)

type Type int

const (
	Person Type = iota
	Mechanic
	Insurance
	RoadsideUnit
	Manufacturer
	Vehicle
)

var ErrUnknownType = errors.New("unknown entity type")

func (t Type) String() string {
	switch t {
	case Person:
		return "person"
	case Mechanic:
		return "mechanic"
	case Insurance:
		return "insurance"
	case RoadsideUnit:
		return "roadside_unit"
	case Manufacturer:
		return "manufacturer"
	case Vehicle:
		return "vehicle"
	default:
		return "unknown"
	}
}

// DocumentTag is the tag stored in a DID document's type list.
func (t Type) DocumentTag() string {
	switch t {
	case Person:
		return "Person"
	case Mechanic:
		return "Mechanic"
	case Insurance:
		return "InsuranceProvider"
	case RoadsideUnit:
		return "RoadsideUnit"
	case Manufacturer:
		return "VehicleManufacturer"
	case Vehicle:
		return "Car"
	default:
		return "Unknown"
	}
}

// Parse accepts both the wire names (person, roadside_unit) and the display
// names used by registration forms (Individual, Roadside Unit).
func Parse(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person", "individual":
		return Person, nil
	case "mechanic":
		return Mechanic, nil
	case "insurance", "insurance provider":
		return Insurance, nil
	case "roadside_unit", "roadside unit", "rsu":
		return RoadsideUnit, nil
	case "manufacturer", "vehicle manufacturer":
		return Manufacturer, nil
	case "vehicle", "car":
		return Vehicle, nil
	default:
		return 0, ErrUnknownType
	}
}

// All lists every defined type, in declaration order.
func All() []Type {
	return []Type{Person, Mechanic, Insurance, RoadsideUnit, Manufacturer, Vehicle}
}
