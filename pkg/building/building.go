// Package building holds one building's utility sub-tree.
package building

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/nilmflow/nilmflow/pkg/electric"
)

// Building owns the metered series of one building.
type Building struct {
	Utility Utility
}

// Utility groups the utilities metered in a building. Only electricity is
// modelled.
type Utility struct {
	Electric Electric
}

// Electric maps each series identifier to its table. Map keys enforce
// that no two series of one category share an identifier.
type Electric struct {
	Mains      map[electric.MainsName]*electric.Table
	Appliances map[electric.ApplianceName]*electric.Table
	Circuits   map[electric.CircuitName]*electric.Table
}

// New returns a building with empty, non-nil maps.
func New() *Building {
	return &Building{
		Utility: Utility{
			Electric: Electric{
				Mains:      make(map[electric.MainsName]*electric.Table),
				Appliances: make(map[electric.ApplianceName]*electric.Table),
				Circuits:   make(map[electric.CircuitName]*electric.Table),
			},
		},
	}
}

// Electric is a shorthand for b.Utility.Electric.
func (b *Building) Electric() *Electric {
	return &b.Utility.Electric
}

// MainsNames returns the mains identifiers in split, meter order.
func (e *Electric) MainsNames() []electric.MainsName {
	names := make([]electric.MainsName, 0, len(e.Mains))
	for n := range e.Mains {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Less(names[j]) })
	return names
}

// ApplianceNames returns the appliance identifiers in name, instance order.
func (e *Electric) ApplianceNames() []electric.ApplianceName {
	names := make([]electric.ApplianceName, 0, len(e.Appliances))
	for n := range e.Appliances {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Less(names[j]) })
	return names
}

// CircuitNames returns the circuit identifiers in name, split, meter order.
func (e *Electric) CircuitNames() []electric.CircuitName {
	names := make([]electric.CircuitName, 0, len(e.Circuits))
	for n := range e.Circuits {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Less(names[j]) })
	return names
}

// SetMains stores a mains table, allocating the map if needed.
func (e *Electric) SetMains(n electric.MainsName, t *electric.Table) {
	if e.Mains == nil {
		e.Mains = make(map[electric.MainsName]*electric.Table)
	}
	e.Mains[n] = t
}

// SetAppliance stores an appliance table, allocating the map if needed.
func (e *Electric) SetAppliance(n electric.ApplianceName, t *electric.Table) {
	if e.Appliances == nil {
		e.Appliances = make(map[electric.ApplianceName]*electric.Table)
	}
	e.Appliances[n] = t
}

// SetCircuit stores a circuit table, allocating the map if needed.
func (e *Electric) SetCircuit(n electric.CircuitName, t *electric.Table) {
	if e.Circuits == nil {
		e.Circuits = make(map[electric.CircuitName]*electric.Table)
	}
	e.Circuits[n] = t
}

// Entry pairs a series identifier with its table.
type Entry struct {
	electric.Series
	Table *electric.Table
}

// Entries returns every series of category c in identifier order.
func (e *Electric) Entries(c electric.Category) []Entry {
	var out []Entry
	switch c {
	case electric.Mains:
		for _, n := range e.MainsNames() {
			out = append(out, Entry{Series: electric.MainsSeries(n), Table: e.Mains[n]})
		}
	case electric.Appliances:
		for _, n := range e.ApplianceNames() {
			out = append(out, Entry{Series: electric.ApplianceSeries(n), Table: e.Appliances[n]})
		}
	case electric.Circuits:
		for _, n := range e.CircuitNames() {
			out = append(out, Entry{Series: electric.CircuitSeries(n), Table: e.Circuits[n]})
		}
	}
	return out
}

// Set stores t under s, routing on the series category.
func (e *Electric) Set(s electric.Series, t *electric.Table) {
	switch s.Category {
	case electric.Mains:
		e.SetMains(s.Mains, t)
	case electric.Appliances:
		e.SetAppliance(s.Appliance, t)
	case electric.Circuits:
		e.SetCircuit(s.Circuit, t)
	}
}

// Len returns the number of series of category c.
func (e *Electric) Len(c electric.Category) int {
	switch c {
	case electric.Mains:
		return len(e.Mains)
	case electric.Appliances:
		return len(e.Appliances)
	case electric.Circuits:
		return len(e.Circuits)
	}
	return 0
}

// seriesJSON is the inventory entry of one series.
type seriesJSON struct {
	Name     string     `json:"name,omitempty"`
	Instance *int       `json:"instance,omitempty"`
	Split    *int       `json:"split,omitempty"`
	Meter    *int       `json:"meter,omitempty"`
	Supply   string     `json:"supply"`
	Columns  []string   `json:"columns"`
	Rows     int        `json:"rows"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
}

type electricJSON struct {
	Mains      []seriesJSON `json:"mains"`
	Appliances []seriesJSON `json:"appliances"`
	Circuits   []seriesJSON `json:"circuits"`
}

type buildingJSON struct {
	Utility struct {
		Electric electricJSON `json:"electric"`
	} `json:"utility"`
}

// MarshalJSON renders the building as an inventory of its series. Readings
// are not included.
func (b *Building) MarshalJSON() ([]byte, error) {
	e := b.Electric()
	out := buildingJSON{}
	el := &out.Utility.Electric
	el.Mains = []seriesJSON{}
	el.Appliances = []seriesJSON{}
	el.Circuits = []seriesJSON{}

	for _, n := range e.MainsNames() {
		s := describe(e.Mains[n])
		s.Split, s.Meter = intPtr(n.Split), intPtr(n.Meter)
		el.Mains = append(el.Mains, s)
	}
	for _, n := range e.ApplianceNames() {
		s := describe(e.Appliances[n])
		s.Name, s.Instance = n.Name, intPtr(n.Instance)
		el.Appliances = append(el.Appliances, s)
	}
	for _, n := range e.CircuitNames() {
		s := describe(e.Circuits[n])
		s.Name, s.Split, s.Meter = n.Name, intPtr(n.Split), intPtr(n.Meter)
		el.Circuits = append(el.Circuits, s)
	}
	return json.Marshal(out)
}

func describe(t *electric.Table) seriesJSON {
	if t == nil {
		return seriesJSON{Supply: electric.SingleSupply.String(), Columns: []string{}}
	}
	s := seriesJSON{
		Supply:  t.Supply.String(),
		Columns: t.Headers(),
		Rows:    t.Len(),
	}
	if t.Len() > 0 {
		first, last := t.Span()
		first, last = first.UTC(), last.UTC()
		s.Start, s.End = &first, &last
	}
	return s
}

func intPtr(v int) *int { return &v }
