package spreadsheet

import (
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilmflow/nilmflow/pkg/building"
	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

func TestSheetNames(t *testing.T) {
	long := strings.Repeat("a", 40)
	entries := []building.Entry{
		{Series: electric.MainsSeries(electric.MainsName{Split: 1, Meter: 1})},
		{Series: electric.ApplianceSeries(electric.ApplianceName{Name: long, Instance: 1})},
		{Series: electric.ApplianceSeries(electric.ApplianceName{Name: long, Instance: 2})},
		{Series: electric.ApplianceSeries(electric.ApplianceName{Name: "tv/dvd", Instance: 1})},
	}

	got := SheetNames(entries)
	assert.Equal(t, "1_1", got[0])
	assert.Equal(t, long[:31], got[1])
	assert.Equal(t, long[:29]+"~2", got[2])
	assert.Equal(t, "tv_dvd_1", got[3])
}

func TestWriteBuilding(t *testing.T) {
	t0 := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	b := building.New()
	b.Electric().SetMains(electric.MainsName{Split: 1, Meter: 1}, electric.MustTable(electric.SingleSupply,
		[]time.Time{t0, t0.Add(time.Second)},
		[]electric.Column{electric.Single(electric.Power, electric.Apparent)},
		[][]float64{{123.456, 7}}))
	b.Electric().SetAppliance(electric.ApplianceName{Name: "fridge", Instance: 1}, electric.MustTable(electric.DualSupply,
		[]time.Time{t0},
		[]electric.Column{electric.Dual(electric.Power, electric.Active, 1), electric.Dual(electric.Power, electric.Active, 2)},
		[][]float64{{1}, {math.NaN()}}))

	path := filepath.Join(t.TempDir(), FileName(1))
	require.NoError(t, WriteBuilding(path, b))

	rows, err := ReadRows(path, "1_1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"timestamp", "power_apparent"},
		{"1356998400", "123.46"},
		{"1356998401", "7.00"},
	}, rows)

	rows, err = ReadRows(path, "fridge_1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"timestamp", "power_active_1", "power_active_2"}, rows[0])
	assert.Equal(t, "1.00", rows[1][1])

	index, err := ReadRows(path, IndexSheet)
	require.NoError(t, err)
	require.Len(t, index, 3)
	assert.Equal(t, []string{"1_1", "mains"}, index[1][:2])
	assert.Equal(t, []string{"fridge_1", "appliances"}, index[2][:2])
}

func TestWriteBuilding_EmptyTable(t *testing.T) {
	b := building.New()
	b.Electric().SetMains(electric.MainsName{Split: 1, Meter: 1}, &electric.Table{})

	err := WriteBuilding(filepath.Join(t.TempDir(), FileName(1)), b)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeEmptyTable))
}
