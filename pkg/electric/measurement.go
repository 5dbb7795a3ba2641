package electric

import (
	"fmt"
	"strconv"
	"strings"
)

// Physical quantities.
const (
	Power   = "power"
	Energy  = "energy"
	Voltage = "voltage"
	Current = "current"
)

// Reading types.
const (
	Active   = "active"
	Reactive = "reactive"
	Apparent = "apparent"
)

// Measurement describes what a single-supply column represents.
type Measurement struct {
	PhysicalQuantity string
	Type             string
}

func (m Measurement) String() string {
	return m.PhysicalQuantity + "_" + m.Type
}

// SupplyKind declares whether the columns of a table are keyed by plain
// measurements or by measurement plus supply leg.
type SupplyKind uint8

const (
	SingleSupply SupplyKind = iota
	DualSupply
)

func (k SupplyKind) String() string {
	switch k {
	case DualSupply:
		return "dual"
	default:
		return "single"
	}
}

// ParseSupplyKind parses "single" or "dual".
func ParseSupplyKind(s string) (SupplyKind, error) {
	switch s {
	case "single":
		return SingleSupply, nil
	case "dual":
		return DualSupply, nil
	default:
		return SingleSupply, fmt.Errorf("unknown supply kind %q", s)
	}
}

// Column is the key of one table column. Supply is the leg (1, 2, ...)
// of a dual-supply appliance and zero for single-supply readings.
type Column struct {
	Measurement
	Supply int
}

// Single builds a single-supply column.
func Single(physicalQuantity, typ string) Column {
	return Column{Measurement: Measurement{PhysicalQuantity: physicalQuantity, Type: typ}}
}

// Dual builds a dual-supply column on the given leg.
func Dual(physicalQuantity, typ string, supply int) Column {
	return Column{Measurement: Measurement{PhysicalQuantity: physicalQuantity, Type: typ}, Supply: supply}
}

// Header encodes the column as a flat header name:
// <physical_quantity>_<type>_<supply> for dual supply and
// <physical_quantity>_<type> otherwise.
func (c Column) Header(kind SupplyKind) string {
	switch kind {
	case DualSupply:
		return fmt.Sprintf("%s_%s_%d", c.PhysicalQuantity, c.Type, c.Supply)
	default:
		return fmt.Sprintf("%s_%s", c.PhysicalQuantity, c.Type)
	}
}

// ParseHeader decodes a header produced by Header. Fields are split from
// the right so physical quantities may themselves contain underscores.
func ParseHeader(header string, kind SupplyKind) (Column, error) {
	parts := strings.Split(header, "_")
	switch kind {
	case DualSupply:
		if len(parts) < 3 {
			return Column{}, fmt.Errorf("dual-supply header %q needs <quantity>_<type>_<supply>", header)
		}
		supply, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil || supply <= 0 {
			return Column{}, fmt.Errorf("dual-supply header %q has invalid supply %q", header, parts[len(parts)-1])
		}
		return Dual(strings.Join(parts[:len(parts)-2], "_"), parts[len(parts)-2], supply), nil
	default:
		if len(parts) < 2 {
			return Column{}, fmt.Errorf("header %q needs <quantity>_<type>", header)
		}
		return Single(strings.Join(parts[:len(parts)-1], "_"), parts[len(parts)-1]), nil
	}
}

// InferSupplyKind reports DualSupply when every header ends in a positive
// integer supply leg. Used when a format carries no explicit declaration;
// a single-supply header like "cumulative_energy_1" is indistinguishable
// from a dual one and is reported as dual.
func InferSupplyKind(headers []string) SupplyKind {
	if len(headers) == 0 {
		return SingleSupply
	}
	for _, h := range headers {
		i := strings.LastIndexByte(h, '_')
		if i < 0 {
			return SingleSupply
		}
		n, err := strconv.Atoi(h[i+1:])
		if err != nil || n <= 0 {
			return SingleSupply
		}
		if strings.Count(h, "_") < 2 {
			return SingleSupply
		}
	}
	return DualSupply
}
