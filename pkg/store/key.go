package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// Key is a decoded series path of the form
// /<building>/utility/electric/<category>/<c1>/<c2>[/<c3>].
type Key struct {
	Building int
	electric.Series
}

// MainsKey returns the key of a mains series.
func MainsKey(building int, n electric.MainsName) Key {
	return Key{Building: building, Series: electric.MainsSeries(n)}
}

// ApplianceKey returns the key of an appliance series.
func ApplianceKey(building int, n electric.ApplianceName) Key {
	return Key{Building: building, Series: electric.ApplianceSeries(n)}
}

// CircuitKey returns the key of a circuit series.
func CircuitKey(building int, n electric.CircuitName) Key {
	return Key{Building: building, Series: electric.CircuitSeries(n)}
}

// String encodes the key as a slash-separated path with a leading slash.
func (k Key) String() string {
	prefix := fmt.Sprintf("/%d/utility/electric/%s", k.Building, k.Category)
	switch k.Category {
	case electric.Mains:
		return fmt.Sprintf("%s/%d/%d", prefix, k.Mains.Split, k.Mains.Meter)
	case electric.Appliances:
		return fmt.Sprintf("%s/%s/%d", prefix, k.Appliance.Name, k.Appliance.Instance)
	case electric.Circuits:
		return fmt.Sprintf("%s/%s/%d/%d", prefix, k.Circuit.Name, k.Circuit.Split, k.Circuit.Meter)
	default:
		return prefix
	}
}

// segments splits a path key, ignoring a leading and a trailing slash.
func segments(key string) []string {
	key = strings.TrimPrefix(key, "/")
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return nil
	}
	return strings.Split(key, "/")
}

// BuildingOf returns the building number carried by the first segment of
// a path key.
func BuildingOf(key string) (int, error) {
	segs := segments(key)
	if len(segs) == 0 {
		return 0, nferrors.MalformedKey(key, "empty key")
	}
	n, err := strconv.Atoi(segs[0])
	if err != nil {
		return 0, nferrors.MalformedKey(key, "building segment is not an integer")
	}
	return n, nil
}

// CategoryOf returns the category segment of a key under
// /<building>/utility/electric. ok is false for any other key.
func CategoryOf(key string) (c electric.Category, ok bool) {
	segs := segments(key)
	if len(segs) < 4 || segs[1] != "utility" || segs[2] != "electric" {
		return 0, false
	}
	return electric.ParseCategory(segs[3])
}

// ParseKey decodes a path key. The category fixes how many trailing
// segments follow it: two for mains and appliances, three for circuits.
func ParseKey(key string) (Key, error) {
	segs := segments(key)
	if len(segs) < 4 {
		return Key{}, nferrors.MalformedKey(key, "fewer than four segments")
	}
	if segs[1] != "utility" || segs[2] != "electric" {
		return Key{}, nferrors.MalformedKey(key, "expected utility/electric after the building number")
	}

	building, err := BuildingOf(key)
	if err != nil {
		return Key{}, err
	}

	category, ok := electric.ParseCategory(segs[3])
	if !ok {
		return Key{}, nferrors.MalformedKey(key, fmt.Sprintf("unknown category %q", segs[3]))
	}
	k := Key{Building: building, Series: electric.Series{Category: category}}
	rest := segs[4:]

	switch k.Category {
	case electric.Mains:
		if len(rest) != 2 {
			return Key{}, nferrors.MalformedKey(key, "mains keys end in <split>/<meter>")
		}
		split, err1 := strconv.Atoi(rest[0])
		meter, err2 := strconv.Atoi(rest[1])
		if err1 != nil || err2 != nil {
			return Key{}, nferrors.MalformedKey(key, "mains split and meter must be integers")
		}
		k.Mains = electric.MainsName{Split: split, Meter: meter}
	case electric.Appliances:
		if len(rest) != 2 {
			return Key{}, nferrors.MalformedKey(key, "appliance keys end in <name>/<instance>")
		}
		instance, err := strconv.Atoi(rest[1])
		if err != nil {
			return Key{}, nferrors.MalformedKey(key, "appliance instance must be an integer")
		}
		k.Appliance = electric.ApplianceName{Name: rest[0], Instance: instance}
	case electric.Circuits:
		if len(rest) != 3 {
			return Key{}, nferrors.MalformedKey(key, "circuit keys end in <name>/<split>/<meter>")
		}
		split, err1 := strconv.Atoi(rest[1])
		meter, err2 := strconv.Atoi(rest[2])
		if err1 != nil || err2 != nil {
			return Key{}, nferrors.MalformedKey(key, "circuit split and meter must be integers")
		}
		k.Circuit = electric.CircuitName{Name: rest[0], Split: split, Meter: meter}
	}
	return k, nil
}
