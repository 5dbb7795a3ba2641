package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

func sample() Metadata {
	voltage := 230.0
	return Metadata{
		Name:                  "REDD",
		FullName:              "Reference Energy Disaggregation Data Set",
		URLs:                  []string{"http://redd.csail.mit.edu"},
		Citations:             []string{"Kolter and Johnson 2011"},
		NominalVoltage:        &voltage,
		Timezone:              "US/Eastern",
		GeographicCoordinates: &Coordinates{42.360091, -71.09416},
		Extra:                 map[string]json.RawMessage{"license": json.RawMessage(`"research only"`)},
	}
}

func TestMetadata_MarshalIsSortedAndCompact(t *testing.T) {
	data, err := json.Marshal(sample())
	require.NoError(t, err)

	want := `{"citations":["Kolter and Johnson 2011"],"full_name":"Reference Energy Disaggregation Data Set",` +
		`"geographic_coordinates":[42.360091,-71.09416],"license":"research only","name":"REDD",` +
		`"nominal_voltage":230,"timezone":"US/Eastern","urls":["http://redd.csail.mit.edu"]}`
	assert.Equal(t, want, string(data))
}

func TestMetadata_EmptyMarshalsToEmptyObject(t *testing.T) {
	data, err := json.Marshal(Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.True(t, (&Metadata{}).IsZero())
}

func TestMetadata_UnmarshalKeepsUnknownKeys(t *testing.T) {
	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"name":"UK-DALE","sample_period":6,"timezone":"Europe/London"}`), &md))

	assert.Equal(t, "UK-DALE", md.Name)
	assert.Equal(t, "Europe/London", md.Timezone)
	assert.Nil(t, md.GeographicCoordinates)
	require.Contains(t, md.Extra, "sample_period")
	assert.JSONEq(t, "6", string(md.Extra["sample_period"]))
}

func TestMetadata_NullAndEmptyKeysSurvive(t *testing.T) {
	in := `{"full_name":"","name":"REFIT","nominal_voltage":null,"timezone":null,"urls":[]}`

	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(in), &md))
	assert.Equal(t, "REFIT", md.Name)
	assert.Empty(t, md.Timezone)
	assert.Nil(t, md.NominalVoltage)
	assert.False(t, md.IsZero())

	out, err := json.Marshal(md)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestMetadata_UnmarshalRejectsNonObjects(t *testing.T) {
	var md Metadata
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &md))
	assert.Error(t, json.Unmarshal([]byte(`null`), &md))
	assert.Error(t, json.Unmarshal([]byte(`{"name":5}`), &md))
}

func TestWriteRead_ByteForByte(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sample()))

	first, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	md, found, err := Read(dir)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 42.360091, md.GeographicCoordinates.Latitude())
	assert.Equal(t, -71.09416, md.GeographicCoordinates.Longitude())

	other := t.TempDir()
	require.NoError(t, Write(other, md))
	second, err := os.ReadFile(filepath.Join(other, FileName))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRead_Missing(t *testing.T) {
	md, found, err := Read(t.TempDir())
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, md.IsZero())
}

func TestRead_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644))

	_, found, err := Read(dir)
	require.Error(t, err)
	assert.True(t, found)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeConfiguration))
}

func TestWrite_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, Write(dir, Metadata{Name: "x"}))
	_, err := os.Stat(filepath.Join(dir, FileName))
	assert.NoError(t, err)
}
