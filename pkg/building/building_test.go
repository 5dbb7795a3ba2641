package building

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilmflow/nilmflow/pkg/electric"
)

func TestBuilding_SortedNames(t *testing.T) {
	b := New()
	e := b.Electric()
	e.SetMains(electric.MainsName{Split: 2, Meter: 1}, nil)
	e.SetMains(electric.MainsName{Split: 1, Meter: 2}, nil)
	e.SetMains(electric.MainsName{Split: 1, Meter: 1}, nil)
	e.SetAppliance(electric.ApplianceName{Name: "kettle", Instance: 1}, nil)
	e.SetAppliance(electric.ApplianceName{Name: "fridge", Instance: 2}, nil)
	e.SetAppliance(electric.ApplianceName{Name: "fridge", Instance: 1}, nil)

	assert.Equal(t, []electric.MainsName{{Split: 1, Meter: 1}, {Split: 1, Meter: 2}, {Split: 2, Meter: 1}}, e.MainsNames())
	assert.Equal(t, []electric.ApplianceName{{Name: "fridge", Instance: 1}, {Name: "fridge", Instance: 2}, {Name: "kettle", Instance: 1}}, e.ApplianceNames())
	assert.Empty(t, e.CircuitNames())
}

func TestBuilding_SettersAllocateMaps(t *testing.T) {
	b := &Building{}
	b.Electric().SetCircuit(electric.CircuitName{Name: "kitchen", Split: 1, Meter: 3}, nil)
	assert.Len(t, b.Utility.Electric.Circuits, 1)
}

func TestBuilding_MarshalJSON(t *testing.T) {
	t0 := time.Unix(1356998400, 0).UTC()
	b := New()
	b.Electric().SetMains(electric.MainsName{Split: 1, Meter: 1}, electric.MustTable(
		electric.SingleSupply,
		[]time.Time{t0, t0.Add(time.Second)},
		[]electric.Column{electric.Single(electric.Power, electric.Apparent)},
		[][]float64{{1, 2}},
	))
	b.Electric().SetAppliance(electric.ApplianceName{Name: "washer_dryer", Instance: 1}, electric.MustTable(
		electric.DualSupply,
		nil,
		[]electric.Column{electric.Dual(electric.Power, electric.Active, 1), electric.Dual(electric.Power, electric.Active, 2)},
		[][]float64{{}, {}},
	))

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var got map[string]map[string]map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))

	el := got["utility"]["electric"]
	require.Len(t, el["mains"], 1)
	assert.Equal(t, float64(1), el["mains"][0]["split"])
	assert.Equal(t, float64(2), el["mains"][0]["rows"])
	assert.Equal(t, "2013-01-01T00:00:00Z", el["mains"][0]["start"])
	assert.Equal(t, []interface{}{"power_apparent"}, el["mains"][0]["columns"])

	require.Len(t, el["appliances"], 1)
	assert.Equal(t, "washer_dryer", el["appliances"][0]["name"])
	assert.Equal(t, "dual", el["appliances"][0]["supply"])
	assert.NotContains(t, el["appliances"][0], "start")
	assert.Empty(t, el["circuits"])
}

func TestElectric_EntriesAndSet(t *testing.T) {
	b := New()
	e := b.Electric()
	tbl := electric.MustTable(electric.SingleSupply, nil,
		[]electric.Column{electric.Single(electric.Power, electric.Active)}, [][]float64{{}})

	e.Set(electric.CircuitSeries(electric.CircuitName{Name: "lights", Split: 1, Meter: 5}), tbl)
	e.Set(electric.ApplianceSeries(electric.ApplianceName{Name: "toaster", Instance: 1}), tbl)
	e.Set(electric.ApplianceSeries(electric.ApplianceName{Name: "kettle", Instance: 1}), tbl)

	assert.Equal(t, 0, e.Len(electric.Mains))
	assert.Equal(t, 2, e.Len(electric.Appliances))
	assert.Equal(t, 1, e.Len(electric.Circuits))

	entries := e.Entries(electric.Appliances)
	require.Len(t, entries, 2)
	assert.Equal(t, "kettle", entries[0].Appliance.Name)
	assert.Same(t, tbl, entries[1].Table)
	assert.Empty(t, e.Entries(electric.Mains))
}
