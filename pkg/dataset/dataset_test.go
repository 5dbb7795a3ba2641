package dataset_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilmflow/nilmflow/pkg/building"
	"github.com/nilmflow/nilmflow/pkg/csvcodec"
	"github.com/nilmflow/nilmflow/pkg/dataset"
	"github.com/nilmflow/nilmflow/pkg/electric"
	nferrors "github.com/nilmflow/nilmflow/pkg/errors"
	"github.com/nilmflow/nilmflow/pkg/metadata"
	"github.com/nilmflow/nilmflow/pkg/spreadsheet"
	"github.com/nilmflow/nilmflow/pkg/store"
	"github.com/nilmflow/nilmflow/pkg/testing/generators"
	"github.com/nilmflow/nilmflow/pkg/testing/roundtrip"
)

func TestExport_LoadStoreRoundTrip(t *testing.T) {
	g := generators.NewDatasetGenerator(42)
	g.Buildings = []int{0, 3, 17}
	g.CircuitsPerBuilding = 1
	want := g.Generate()

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, want.Export(context.Background(), dir))

	got := dataset.New()
	require.NoError(t, got.LoadStore(context.Background(), dir))

	assert.Equal(t, []int{0, 3, 17}, got.BuildingNumbers())
	cmp := roundtrip.Compare(want, got, roundtrip.OptionsFor(roundtrip.FormatStore))
	assert.True(t, cmp.Success, "%v", cmp.Messages)
	for _, n := range got.BuildingNumbers() {
		assert.Empty(t, got.Buildings[n].Utility.Electric.Circuits, "circuits are not stored")
	}
}

func TestExport_PreservesNanoseconds(t *testing.T) {
	t0 := time.Date(2013, 1, 1, 0, 0, 0, 1, time.UTC)
	ds := dataset.New()
	b := building.New()
	b.Electric().SetMains(electric.MainsName{Split: 1, Meter: 1}, electric.MustTable(electric.SingleSupply,
		[]time.Time{t0, t0.Add(time.Nanosecond)},
		[]electric.Column{electric.Single(electric.Power, electric.Apparent)},
		[][]float64{{1.23456789, 2}}))
	ds.Buildings[1] = b

	dir := t.TempDir()
	require.NoError(t, ds.Export(context.Background(), dir))

	got := dataset.New()
	require.NoError(t, got.LoadStore(context.Background(), dir))
	assert.True(t, b.Utility.Electric.Mains[electric.MainsName{Split: 1, Meter: 1}].Equal(
		got.Buildings[1].Utility.Electric.Mains[electric.MainsName{Split: 1, Meter: 1}]))
}

func TestLoadStore_MissingStore(t *testing.T) {
	ds := dataset.New()
	err := ds.LoadStore(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeNotFound))
}

func TestLoadStore_InvalidMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadata.FileName), []byte("{not json"), 0644))

	err := dataset.New().LoadStore(context.Background(), dir)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeConfiguration))
}

func TestLoadStore_MetadataRoundTripsByteForByte(t *testing.T) {
	dir := t.TempDir()
	sidecar := `{"extra":{"b":1,"a":[1,2]},"geographic_coordinates":[42.36,-71.09],"name":"REDD","nominal_voltage":120,"urls":["http://redd.csail.mit.edu"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadata.FileName), []byte(sidecar), 0644))

	w, err := store.Create(filepath.Join(dir, store.FileName), store.NewCodec(store.DefaultOptions()))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	ds := dataset.New()
	require.NoError(t, ds.LoadStore(context.Background(), dir))
	assert.Equal(t, "REDD", ds.Metadata.Name)

	out := t.TempDir()
	require.NoError(t, ds.Export(context.Background(), out))
	data, err := os.ReadFile(filepath.Join(out, metadata.FileName))
	require.NoError(t, err)
	assert.Equal(t, sidecar, string(data))
}

func TestLoadStore_SkipsCircuitKeys(t *testing.T) {
	dir := t.TempDir()
	g := generators.NewDatasetGenerator(1)
	tbl := g.Table(electric.SingleSupply, []electric.Column{electric.Single(electric.Power, electric.Active)})

	w, err := store.Create(filepath.Join(dir, store.FileName), store.NewCodec(store.DefaultOptions()))
	require.NoError(t, err)
	require.NoError(t, w.Put(store.MainsKey(4, electric.MainsName{Split: 1, Meter: 1}), tbl))
	require.NoError(t, w.Put(store.CircuitKey(4, electric.CircuitName{Name: "kitchen", Split: 1, Meter: 2}), tbl))
	require.NoError(t, w.Commit())

	ds := dataset.New()
	require.NoError(t, ds.LoadStore(context.Background(), dir))
	require.Contains(t, ds.Buildings, 4)
	assert.Len(t, ds.Buildings[4].Utility.Electric.Mains, 1)
	assert.Empty(t, ds.Buildings[4].Utility.Electric.Circuits)
}

func TestExportCSV_Layout(t *testing.T) {
	t0 := time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := dataset.New()
	ds.Metadata.Name = "TEST"
	b := building.New()
	b.Electric().SetAppliance(electric.ApplianceName{Name: "fridge", Instance: 1}, electric.MustTable(electric.DualSupply,
		[]time.Time{t0},
		[]electric.Column{electric.Dual(electric.Power, electric.Active, 1)},
		[][]float64{{123.456}}))
	b.Electric().SetCircuit(electric.CircuitName{Name: "lights", Split: 1, Meter: 2}, electric.MustTable(electric.SingleSupply,
		[]time.Time{t0},
		[]electric.Column{electric.Single(electric.Power, electric.Active)},
		[][]float64{{5}}))
	ds.Buildings[2] = b

	dir := t.TempDir()
	require.NoError(t, ds.ExportCSV(context.Background(), dir))

	data, err := os.ReadFile(filepath.Join(dir, "building_2", "utility", "electric", "appliances", "fridge_1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "timestamp,power_active_1\n1356998400,123.46\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "building_2", "utility", "electric", "circuits", "lights_1_2.csv"))
	require.NoError(t, err)
	assert.Equal(t, "timestamp,power_active\n1356998400,5.00\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, metadata.FileName))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"TEST"}`, string(data))
}

func TestExportCSV_Idempotent(t *testing.T) {
	ds := generators.NewDatasetGenerator(7).Generate()
	dir := t.TempDir()

	require.NoError(t, ds.ExportCSV(context.Background(), dir))
	first := readTree(t, dir)
	require.NoError(t, ds.ExportCSV(context.Background(), dir))
	second := readTree(t, dir)

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		files[path] = string(data)
		return err
	})
	require.NoError(t, err)
	return files
}

func TestExportCSV_EmptyTable(t *testing.T) {
	ds := dataset.New()
	b := building.New()
	b.Electric().SetMains(electric.MainsName{Split: 1, Meter: 1}, &electric.Table{Supply: electric.SingleSupply})
	ds.Buildings[9] = b

	err := ds.ExportCSV(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeEmptyTable))
	assert.Contains(t, err.Error(), "building=9")
	assert.Contains(t, err.Error(), "series=mains(split=1, meter=1)")
}

func TestExport_EmptyTable(t *testing.T) {
	t0 := time.Unix(1303118529, 0).UTC()
	ds := dataset.New()
	b := building.New()
	b.Electric().SetMains(electric.MainsName{Split: 1, Meter: 1}, electric.MustTable(electric.SingleSupply, []time.Time{t0}, nil, nil))
	ds.Buildings[4] = b

	dir := t.TempDir()
	err := ds.Export(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeEmptyTable))
	assert.Contains(t, err.Error(), "building=4")
	assert.Contains(t, err.Error(), "series=mains(split=1, meter=1)")
	assert.NoFileExists(t, filepath.Join(dir, store.FileName))
}

func TestExport_InvalidCompressionLevel(t *testing.T) {
	for _, opts := range []store.Options{
		{Compression: store.CompressionGzip, CompressionLevel: 12, BatchSize: 16},
		{Compression: store.CompressionZstd, CompressionLevel: 23, BatchSize: 16},
	} {
		ds := generators.NewDatasetGenerator(1).Generate(dataset.WithStoreOptions(opts))
		dir := filepath.Join(t.TempDir(), "out")

		err := ds.Export(context.Background(), dir)
		require.Error(t, err)
		assert.True(t, nferrors.IsCode(err, nferrors.CodeConfiguration), "%v", err)
		assert.NoDirExists(t, dir)
	}
}

func TestExportCSV_RejectsPathNames(t *testing.T) {
	for _, name := range []string{"washer/dryer", "../escape", ".."} {
		t.Run(name, func(t *testing.T) {
			ds := generators.NewDatasetGenerator(2).Generate()
			ds.Buildings[1].Electric().SetAppliance(electric.ApplianceName{Name: name, Instance: 1},
				ds.Buildings[1].Electric().Mains[electric.MainsName{Split: 1, Meter: 1}])

			dir := t.TempDir()
			err := ds.ExportCSV(context.Background(), dir)
			require.Error(t, err)
			assert.True(t, nferrors.IsCode(err, nferrors.CodeMalformedKey))
			assert.Contains(t, err.Error(), "building=1")

			err = ds.ExportXLSX(context.Background(), filepath.Join(dir, "xlsx"))
			assert.True(t, nferrors.IsCode(err, nferrors.CodeMalformedKey))

			err = ds.Export(context.Background(), filepath.Join(dir, "store"))
			assert.True(t, nferrors.IsCode(err, nferrors.CodeMalformedKey))
		})
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	g := generators.NewDatasetGenerator(3)
	g.CircuitsPerBuilding = 2
	want := g.Generate()

	dir := t.TempDir()
	require.NoError(t, want.ExportCSV(context.Background(), dir))

	got := dataset.New()
	require.NoError(t, got.LoadCSV(context.Background(), dir))
	cmp := roundtrip.Compare(want, got, roundtrip.OptionsFor(roundtrip.FormatCSV))
	assert.True(t, cmp.Success, "%v", cmp.Messages)
}

func TestEmptyDataset(t *testing.T) {
	ds := dataset.New()
	dir := t.TempDir()

	require.NoError(t, ds.ExportCSV(context.Background(), dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, metadata.FileName, entries[0].Name())

	require.NoError(t, ds.Export(context.Background(), dir))
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), "no building directories: %s", e.Name())
	}

	assert.Empty(t, ds.NAppliancesPerBuilding())
	assert.Contains(t, ds.String(), "number of buildings : 0\n")
	assert.Contains(t, ds.String(), "name : NOT DEFINED\n")

	got := dataset.New()
	require.NoError(t, got.LoadStore(context.Background(), dir))
	assert.Empty(t, got.Buildings)
}

// fakeLoader serves numbered buildings and fails on one of them.
type fakeLoader struct {
	names    []string
	namesErr error
	failOn   string
	err      error
	visited  []string
}

func (l *fakeLoader) BuildingNames(ctx context.Context, root string) ([]string, error) {
	return l.names, l.namesErr
}

func (l *fakeLoader) LoadBuilding(ctx context.Context, root, name string) (int, *building.Building, error) {
	l.visited = append(l.visited, name)
	if name == l.failOn {
		return 0, nil, l.err
	}
	var n int
	fmt.Sscanf(name, "house%d", &n)
	return n, building.New(), nil
}

func TestLoad_AbortsOnFirstFailure(t *testing.T) {
	cause := errors.New("corrupt source file")
	loader := &fakeLoader{
		names:  []string{"house1", "house2", "house3", "house4", "house5"},
		failOn: "house3",
		err:    cause,
	}

	ds := dataset.New()
	err := ds.Load(context.Background(), "/raw", loader)
	require.Error(t, err)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeSourceLoad))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "building=house3")

	assert.Equal(t, []string{"house1", "house2", "house3"}, loader.visited)
	assert.Equal(t, []int{1, 2}, ds.BuildingNumbers())
}

func TestLoad_EnumerationFailure(t *testing.T) {
	cause := errors.New("no such dataset")
	loader := &fakeLoader{namesErr: cause}

	ds := dataset.New()
	err := ds.Load(context.Background(), "/raw", loader)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeSourceLoad))
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, loader.visited)
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := &fakeLoader{names: []string{"house1"}}
	err := dataset.New().Load(ctx, "/raw", loader)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeCanceled))
	assert.Empty(t, loader.visited)
}

func TestNAppliancesPerBuilding_AndString(t *testing.T) {
	ds := dataset.New()
	ds.Metadata.Name = "REDD"
	for n, count := range map[int]int{1: 2, 2: 4, 3: 6} {
		b := building.New()
		for i := 1; i <= count; i++ {
			b.Electric().SetAppliance(electric.ApplianceName{Name: "lamp", Instance: i}, nil)
		}
		ds.Buildings[n] = b
	}

	assert.Equal(t, []int{2, 4, 6}, ds.NAppliancesPerBuilding())

	want := strings.Join([]string{
		"name : REDD",
		"number of buildings : 3",
		"number of appliances per building :",
		"  min  = 2",
		"  max  = 6",
		"  mean = 4.00",
		"  std  = 1.63",
		"",
	}, "\n")
	assert.Equal(t, want, ds.String())
}

func TestToJSON(t *testing.T) {
	ds := generators.NewDatasetGenerator(5).Generate()
	data, err := ds.ToJSON()
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `"SYNTH"`, string(doc["name"]))

	var buildings map[string]struct {
		Utility struct {
			Electric struct {
				Mains      []json.RawMessage `json:"mains"`
				Appliances []json.RawMessage `json:"appliances"`
			} `json:"electric"`
		} `json:"utility"`
	}
	require.NoError(t, json.Unmarshal(doc["buildings"], &buildings))
	require.Len(t, buildings, 3)
	assert.Len(t, buildings["1"].Utility.Electric.Mains, 2)
	assert.Len(t, buildings["2"].Utility.Electric.Appliances, ds.NAppliancesPerBuilding()[1])
}

func TestExportXLSX(t *testing.T) {
	var progress []int
	ds := generators.NewDatasetGenerator(11).Generate(dataset.WithProgress(func(building, done, total int) {
		progress = append(progress, building)
	}))
	dir := t.TempDir()

	require.NoError(t, ds.ExportXLSX(context.Background(), dir))
	assert.Equal(t, []int{1, 2, 3}, progress)

	rows, err := spreadsheet.ReadRows(filepath.Join(dir, spreadsheet.FileName(1)), "1_1")
	require.NoError(t, err)
	require.Len(t, rows, 51)
	assert.Equal(t, []string{csvcodec.TimestampHeader, "power_apparent"}, rows[0])
}

func TestExport_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	err := generators.NewDatasetGenerator(1).Generate().Export(ctx, dir)
	assert.True(t, nferrors.IsCode(err, nferrors.CodeCanceled))

	_, statErr := os.Stat(filepath.Join(dir, store.FileName))
	assert.True(t, os.IsNotExist(statErr), "an aborted export leaves no store behind")
	_, statErr = os.Stat(filepath.Join(dir, metadata.FileName))
	assert.NoError(t, statErr, "metadata is written first")
}
