package utils

import (
	"fmt"
	"strings"
)

// BCType is the kind of a boundary region
type BCType uint8

const (
	// BCNone marks an interior entity
	BCNone BCType = iota
	BCDirichlet
	BCNeumann
	BCRobin
	BCPeriodic
)

func (bc BCType) String() string {
	names := map[BCType]string{
		BCNone:      "None",
		BCDirichlet: "Dirichlet",
		BCNeumann:   "Neumann",
		BCRobin:     "Robin",
		BCPeriodic:  "Periodic",
	}
	if name, ok := names[bc]; ok {
		return name
	}
	return "Unknown"
}

// IsEssential is true for kinds whose values are prescribed on the entity
func (bc BCType) IsEssential() bool { return bc == BCDirichlet }

// BCNameMap maps lowercase boundary names to BCType. Applications may extend
// it with mesh specific aliases.
var BCNameMap = map[string]BCType{
	"none":      BCNone,
	"interior":  BCNone,
	"dirichlet": BCDirichlet,
	"d":         BCDirichlet,
	"wall":      BCDirichlet,
	"neumann":   BCNeumann,
	"n":         BCNeumann,
	"flux":      BCNeumann,
	"robin":     BCRobin,
	"r":         BCRobin,
	"mixed":     BCRobin,
	"periodic":  BCPeriodic,
	"p":         BCPeriodic,
}

// ParseBCName converts a boundary condition name to BCType, case-insensitive
func ParseBCName(name string) (bc BCType, err error) {
	var ok bool
	if bc, ok = BCNameMap[strings.ToLower(strings.TrimSpace(name))]; !ok {
		err = fmt.Errorf("unknown boundary condition name: %q", name)
	}
	return
}
