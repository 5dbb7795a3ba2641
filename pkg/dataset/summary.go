package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nilmflow/nilmflow/pkg/building"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
)

// NAppliancesPerBuilding returns the appliance count of each building in
// building number order.
func (ds *DataSet) NAppliancesPerBuilding() []int {
	numbers := ds.BuildingNumbers()
	counts := make([]int, len(numbers))
	for i, n := range numbers {
		counts[i] = len(ds.Buildings[n].Utility.Electric.Appliances)
	}
	return counts
}

// String summarises the dataset: its name, building count and the spread
// of appliance counts across buildings.
func (ds *DataSet) String() string {
	name := ds.Metadata.Name
	if name == "" {
		name = "NOT DEFINED"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "name : %s\n", name)
	fmt.Fprintf(&sb, "number of buildings : %d\n", len(ds.Buildings))
	sb.WriteString("number of appliances per building :\n")
	sb.WriteString(summaryStats(ds.NAppliancesPerBuilding()))
	return sb.String()
}

// Stats holds the min, max, mean and population standard deviation of a
// sample.
type Stats struct {
	Min, Max  int
	Mean, Std float64
}

// Describe computes Stats. ok is false for an empty sample.
func Describe(values []int) (s Stats, ok bool) {
	if len(values) == 0 {
		return Stats{}, false
	}
	s.Min, s.Max = values[0], values[0]
	sum := 0
	for _, v := range values {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
		sum += v
	}
	s.Mean = float64(sum) / float64(len(values))

	var sq float64
	for _, v := range values {
		d := float64(v) - s.Mean
		sq += d * d
	}
	s.Std = math.Sqrt(sq / float64(len(values)))
	return s, true
}

func summaryStats(values []int) string {
	s, ok := Describe(values)
	if !ok {
		return "  n/a\n"
	}
	return fmt.Sprintf("  min  = %d\n  max  = %d\n  mean = %.2f\n  std  = %.2f\n", s.Min, s.Max, s.Mean, s.Std)
}

// ToJSON returns the metadata fields plus a "buildings" object keyed by
// building number, each holding the building's series inventory.
func (ds *DataSet) ToJSON() ([]byte, error) {
	fields, err := ds.Metadata.Fields()
	if err != nil {
		return nil, nferrors.Wrap(err, nferrors.CodeConfiguration, "encode metadata")
	}

	buildings := make(map[string]*building.Building, len(ds.Buildings))
	for n, b := range ds.Buildings {
		buildings[strconv.Itoa(n)] = b
	}
	raw, err := json.Marshal(buildings)
	if err != nil {
		return nil, nferrors.Wrap(err, nferrors.CodeIO, "encode buildings")
	}
	fields["buildings"] = raw

	return json.Marshal(fields)
}
