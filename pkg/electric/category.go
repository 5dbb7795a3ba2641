package electric

import (
	"fmt"
	"path/filepath"
	"strings"

	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// Category tags which sub-tree of a building's electric utility a series
// belongs to.
type Category uint8

const (
	Mains Category = iota
	Appliances
	Circuits
)

// Categories lists every category in export order.
var Categories = []Category{Mains, Appliances, Circuits}

// String returns the directory and path segment name of the category.
func (c Category) String() string {
	switch c {
	case Mains:
		return "mains"
	case Appliances:
		return "appliances"
	case Circuits:
		return "circuits"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// ParseCategory maps a path segment back to its category.
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "mains":
		return Mains, true
	case "appliances":
		return Appliances, true
	case "circuits":
		return Circuits, true
	default:
		return 0, false
	}
}

// Series identifies one metered series within a building. Category selects
// which of the name fields is meaningful.
type Series struct {
	Category  Category
	Mains     MainsName
	Appliance ApplianceName
	Circuit   CircuitName
}

// MainsSeries tags a mains identifier.
func MainsSeries(n MainsName) Series { return Series{Category: Mains, Mains: n} }

// ApplianceSeries tags an appliance identifier.
func ApplianceSeries(n ApplianceName) Series { return Series{Category: Appliances, Appliance: n} }

// CircuitSeries tags a circuit identifier.
func CircuitSeries(n CircuitName) Series { return Series{Category: Circuits, Circuit: n} }

func (s Series) String() string {
	switch s.Category {
	case Mains:
		return s.Mains.String()
	case Appliances:
		return s.Appliance.String()
	case Circuits:
		return s.Circuit.String()
	default:
		return s.Category.String()
	}
}

// Validate rejects appliance and circuit names that cannot be used as a
// single path segment: names holding a path separator or "..".
func (s Series) Validate() error {
	var name string
	switch s.Category {
	case Appliances:
		name = s.Appliance.Name
	case Circuits:
		name = s.Circuit.Name
	default:
		return nil
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return nferrors.MalformedKey(s.String(), "names must not contain a path separator")
	}
	if strings.Contains(name, "..") {
		return nferrors.MalformedKey(s.String(), `names must not contain ".."`)
	}
	return nil
}
