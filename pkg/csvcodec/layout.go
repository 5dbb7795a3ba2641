// Package csvcodec maps series onto the per-series CSV directory layout:
//
//	building_<B>/utility/electric/mains/<split>_<meter>.csv
//	building_<B>/utility/electric/appliances/<name>_<instance>.csv
//	building_<B>/utility/electric/circuits/<name>_<split>_<meter>.csv
package csvcodec

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

const (
	buildingPrefix = "building_"
	extension      = ".csv"
)

// BuildingDir returns the directory of one building under root.
func BuildingDir(root string, building int) string {
	return filepath.Join(root, buildingPrefix+strconv.Itoa(building))
}

// ParseBuildingDir extracts the building number from a directory name
// such as "building_3".
func ParseBuildingDir(name string) (int, bool) {
	if !strings.HasPrefix(name, buildingPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, buildingPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Dir returns the directory holding every series of category c.
func Dir(root string, building int, c electric.Category) string {
	return filepath.Join(BuildingDir(root, building), "utility", "electric", c.String())
}

// FileName returns the CSV file name of a series.
func FileName(s electric.Series) string {
	switch s.Category {
	case electric.Mains:
		return fmt.Sprintf("%d_%d%s", s.Mains.Split, s.Mains.Meter, extension)
	case electric.Appliances:
		return fmt.Sprintf("%s_%d%s", s.Appliance.Name, s.Appliance.Instance, extension)
	case electric.Circuits:
		return fmt.Sprintf("%s_%d_%d%s", s.Circuit.Name, s.Circuit.Split, s.Circuit.Meter, extension)
	default:
		return s.Category.String() + extension
	}
}

// Path returns the full path of a series file under root.
func Path(root string, building int, s electric.Series) string {
	return filepath.Join(Dir(root, building, s.Category), FileName(s))
}

// ParseFileName decodes a file name produced by FileName. Numeric fields
// are taken from the right, so names may contain underscores.
func ParseFileName(c electric.Category, file string) (electric.Series, error) {
	if !strings.HasSuffix(file, extension) {
		return electric.Series{}, nferrors.MalformedKey(file, "not a .csv file")
	}
	parts := strings.Split(strings.TrimSuffix(file, extension), "_")

	// ints parses the last n parts.
	ints := func(n int) ([]int, bool) {
		out := make([]int, n)
		for i := 0; i < n; i++ {
			v, err := strconv.Atoi(parts[len(parts)-n+i])
			if err != nil {
				return nil, false
			}
			out[i] = v
		}
		return out, true
	}

	switch c {
	case electric.Mains:
		if len(parts) != 2 {
			return electric.Series{}, nferrors.MalformedKey(file, "mains files are named <split>_<meter>.csv")
		}
		v, ok := ints(2)
		if !ok {
			return electric.Series{}, nferrors.MalformedKey(file, "mains split and meter must be integers")
		}
		return electric.MainsSeries(electric.MainsName{Split: v[0], Meter: v[1]}), nil
	case electric.Appliances:
		if len(parts) < 2 {
			return electric.Series{}, nferrors.MalformedKey(file, "appliance files are named <name>_<instance>.csv")
		}
		v, ok := ints(1)
		if !ok {
			return electric.Series{}, nferrors.MalformedKey(file, "appliance instance must be an integer")
		}
		name := strings.Join(parts[:len(parts)-1], "_")
		return electric.ApplianceSeries(electric.ApplianceName{Name: name, Instance: v[0]}), nil
	case electric.Circuits:
		if len(parts) < 3 {
			return electric.Series{}, nferrors.MalformedKey(file, "circuit files are named <name>_<split>_<meter>.csv")
		}
		v, ok := ints(2)
		if !ok {
			return electric.Series{}, nferrors.MalformedKey(file, "circuit split and meter must be integers")
		}
		name := strings.Join(parts[:len(parts)-2], "_")
		return electric.CircuitSeries(electric.CircuitName{Name: name, Split: v[0], Meter: v[1]}), nil
	default:
		return electric.Series{}, nferrors.MalformedKey(file, "unknown category "+c.String())
	}
}
