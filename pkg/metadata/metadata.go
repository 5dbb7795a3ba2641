// Package metadata reads and writes the dataset metadata sidecar.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// FileName is the sidecar file name inside a dataset directory.
const FileName = "metadata.json"

// Coordinates is a (latitude, longitude) pair, encoded as a two-element
// JSON array.
type Coordinates [2]float64

func (c Coordinates) Latitude() float64  { return c[0] }
func (c Coordinates) Longitude() float64 { return c[1] }

// Metadata describes a dataset. Keys other than the recognised ones are
// kept verbatim in Extra and written back unchanged.
type Metadata struct {
	Name           string
	FullName       string
	URLs           []string
	Citations      []string
	NominalVoltage *float64
	Timezone       string
	// GeographicCoordinates is the fallback location for buildings that
	// carry none of their own.
	GeographicCoordinates *Coordinates

	Extra map[string]json.RawMessage
}

// recognised keys, in the order they are decoded.
const (
	keyName           = "name"
	keyFullName       = "full_name"
	keyURLs           = "urls"
	keyCitations      = "citations"
	keyNominalVoltage = "nominal_voltage"
	keyTimezone       = "timezone"
	keyCoordinates    = "geographic_coordinates"
)

// IsZero reports whether no field is set.
func (m *Metadata) IsZero() bool {
	return m.Name == "" && m.FullName == "" && m.URLs == nil && m.Citations == nil &&
		m.NominalVoltage == nil && m.Timezone == "" && m.GeographicCoordinates == nil &&
		len(m.Extra) == 0
}

// Fields returns every set key with its JSON encoding.
func (m *Metadata) Fields() (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, len(m.Extra)+7)
	for k, v := range m.Extra {
		fields[k] = v
	}

	put := func(key string, v interface{}) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		fields[key] = raw
		return nil
	}

	if m.Name != "" {
		if err := put(keyName, m.Name); err != nil {
			return nil, err
		}
	}
	if m.FullName != "" {
		if err := put(keyFullName, m.FullName); err != nil {
			return nil, err
		}
	}
	if m.URLs != nil {
		if err := put(keyURLs, m.URLs); err != nil {
			return nil, err
		}
	}
	if m.Citations != nil {
		if err := put(keyCitations, m.Citations); err != nil {
			return nil, err
		}
	}
	if m.NominalVoltage != nil {
		if err := put(keyNominalVoltage, *m.NominalVoltage); err != nil {
			return nil, err
		}
	}
	if m.Timezone != "" {
		if err := put(keyTimezone, m.Timezone); err != nil {
			return nil, err
		}
	}
	if m.GeographicCoordinates != nil {
		if err := put(keyCoordinates, m.GeographicCoordinates); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// MarshalJSON writes a flat object with keys in sorted order, so that the
// encoding of a given Metadata is always the same bytes.
func (m Metadata) MarshalJSON() ([]byte, error) {
	fields, err := m.Fields()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON accepts any JSON object.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("metadata must be a JSON object")
	}

	*m = Metadata{}
	// take decodes a recognised key. A value that decodes to the zero value
	// (null, "") stays in Extra so it is written back unchanged.
	take := func(key string, dst interface{}) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if !reflect.ValueOf(dst).Elem().IsZero() {
			delete(fields, key)
		}
		return nil
	}

	if err := take(keyName, &m.Name); err != nil {
		return err
	}
	if err := take(keyFullName, &m.FullName); err != nil {
		return err
	}
	if err := take(keyURLs, &m.URLs); err != nil {
		return err
	}
	if err := take(keyCitations, &m.Citations); err != nil {
		return err
	}
	if err := take(keyNominalVoltage, &m.NominalVoltage); err != nil {
		return err
	}
	if err := take(keyTimezone, &m.Timezone); err != nil {
		return err
	}
	if err := take(keyCoordinates, &m.GeographicCoordinates); err != nil {
		return err
	}

	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

// Read loads the sidecar in dir. A missing file yields empty metadata and
// found=false; unparsable content is a configuration error.
func Read(dir string) (md Metadata, found bool, err error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, nferrors.IO(err, "read metadata", path)
	}

	if err := json.Unmarshal(bytes.TrimSpace(data), &md); err != nil {
		return Metadata{}, true, nferrors.Configuration(err, path)
	}
	return md, true, nil
}

// Write creates dir if needed and writes the sidecar into it.
func Write(dir string, md Metadata) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nferrors.IO(err, "create directory", dir)
	}

	data, err := json.Marshal(md)
	if err != nil {
		return nferrors.Wrap(err, nferrors.CodeConfiguration, "encode metadata")
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nferrors.IO(err, "write metadata", path)
	}
	return nil
}
