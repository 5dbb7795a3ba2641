// Package electric models the electricity sub-tree of a building: the
// identifiers of metered series, the measurement each column carries, and
// the time-indexed tables that hold readings.
package electric

import "fmt"

// MainsName identifies a mains circuit by electrical split and meter index.
type MainsName struct {
	Split int
	Meter int
}

func (n MainsName) String() string {
	return fmt.Sprintf("mains(split=%d, meter=%d)", n.Split, n.Meter)
}

// Less orders mains by split, then meter.
func (n MainsName) Less(o MainsName) bool {
	if n.Split != o.Split {
		return n.Split < o.Split
	}
	return n.Meter < o.Meter
}

// ApplianceName identifies an appliance by canonical label and instance.
// Instance disambiguates identical appliances within one building.
type ApplianceName struct {
	Name     string
	Instance int
}

func (n ApplianceName) String() string {
	return fmt.Sprintf("appliance(%s, instance=%d)", n.Name, n.Instance)
}

// Less orders appliances by name, then instance.
func (n ApplianceName) Less(o ApplianceName) bool {
	if n.Name != o.Name {
		return n.Name < o.Name
	}
	return n.Instance < o.Instance
}

// CircuitName identifies a sub-circuit.
type CircuitName struct {
	Name  string
	Split int
	Meter int
}

func (n CircuitName) String() string {
	return fmt.Sprintf("circuit(%s, split=%d, meter=%d)", n.Name, n.Split, n.Meter)
}

// Less orders circuits by name, split, then meter.
func (n CircuitName) Less(o CircuitName) bool {
	if n.Name != o.Name {
		return n.Name < o.Name
	}
	if n.Split != o.Split {
		return n.Split < o.Split
	}
	return n.Meter < o.Meter
}
