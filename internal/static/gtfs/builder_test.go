package gtfs

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
	"github.com/transit-explorer/core/internal/timetable"
)

var testFeed = map[string]string{
	"agency.txt": "agency_id,agency_name,agency_url\nPMPML,Pune Mahanagar Parivahan,https://pmpml.org\n",
	"routes.txt": "\ufeffroute_id,agency_id,route_short_name,route_long_name,route_desc,route_type\n" +
		"R1,PMPML,A1,Swargate - Hadapsar,AC service,3\n" +
		"R2,PMPML,B2,Katraj - Nigdi,,3\n",
	"stops.txt": "stop_id,stop_code,stop_name,stop_lat,stop_lon,location_type\n" +
		"S1,101,Swargate,18.5018,73.8636,0\n" +
		"S2,102,Pulgate,18.5040,73.8860,0\n" +
		"S3,103,Hadapsar,18.5089,73.9260,0\n" +
		"ST,900,Big Station,18.5000,73.8000,1\n" +
		"S0,000,Nowhere,0,0,0\n",
	"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id,shape_id\n" +
		"R1,WK,t1,Hadapsar,0,sh1\n" +
		"R1,WK,t2,Hadapsar,0,sh1\n" +
		"R1,WK,t3,Hadapsar,0,sh1\n" +
		"R2,WK,t4,Nigdi,0,\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"t1,08:00:00,08:00:00,S1,1\nt1,08:10:00,08:10:00,S2,2\nt1,08:25:00,08:25:00,S3,3\n" +
		"t2,08:20:00,08:20:00,S1,1\nt2,08:30:00,08:30:00,S2,2\nt2,08:45:00,08:45:00,S3,3\n" +
		"t3,08:50:00,08:50:00,S1,1\nt3,09:00:00,09:00:00,S2,2\nt3,09:15:00,09:15:00,S3,3\n" +
		"t4,17:00:00,17:00:00,S1,1\nt4,17:30:00,17:30:00,S3,2\n",
	"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
		"sh1,18.5089,73.9260,3\nsh1,18.5018,73.8636,1\nsh1,18.5040,73.8860,2\n",
	"fare_rules.txt": "fare_id,route_id\nAC_FARE,R1\n",
}

func buildZip(t *testing.T, files map[string]string, prefix string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(prefix + name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return bytes.NewReader(buf.Bytes())
}

func parseTestFeed(t *testing.T) *Data {
	t.Helper()
	r := buildZip(t, testFeed, "feed/")
	data, err := ParseReader(r, r.Size())
	require.NoError(t, err)
	return data
}

func TestParseReader(t *testing.T) {
	data := parseTestFeed(t)
	assert.Len(t, data.Routes, 2)
	assert.Equal(t, "R1", data.Routes[0].RouteID, "BOM stripped from header")
	assert.Len(t, data.Stops, 5)
	assert.Len(t, data.StopTimes, 11)
	require.Len(t, data.Shapes["sh1"], 3)
	assert.Equal(t, 1, data.Shapes["sh1"][0].ShapePtSequence)
	assert.Equal(t, []FareRule{{FareID: "AC_FARE", RouteID: "R1"}}, data.FareRules)
}

func TestParseReaderMissingFile(t *testing.T) {
	files := map[string]string{"stops.txt": testFeed["stops.txt"]}
	r := buildZip(t, files, "")
	_, err := ParseReader(r, r.Size())
	assert.Error(t, err)
}

func findFeature(fc geo.FeatureCollection, kind geo.FeatureType, id string) (geo.RawFeature, bool) {
	for _, f := range fc.Features {
		if got, ok := geo.ResolveID(f, kind); ok && got == id {
			return f, true
		}
	}
	return geo.RawFeature{}, false
}

func TestBuild(t *testing.T) {
	features, err := Build(parseTestFeed(t), BuildOptions{LiveRouteIDs: map[string]bool{"R1": true}})
	require.NoError(t, err)

	assert.Len(t, features.Stops.Features, 3, "stations and invalid coordinates skipped")

	s1, ok := findFeature(features.Stops, geo.FeatureStop, "S1")
	require.True(t, ok)
	assert.Equal(t, "Swargate", s1.StringProperty("name"))
	assert.Equal(t, "Pulgate", s1.StringProperty("towards_stop"))

	entries, err := timetable.Parse(s1.Properties["timetable"])
	require.NoError(t, err)
	require.Len(t, entries, 2)

	a1 := entries[0]
	assert.Equal(t, "A1", a1.Route)
	assert.Equal(t, "Hadapsar", a1.Destination)
	assert.Equal(t, []string{"08:00", "08:20", "08:50"}, a1.Times)
	assert.Equal(t, map[string]int{models.BucketMorning: 30}, a1.Headway.Buckets, "median of 20 and 30")
	assert.True(t, a1.IsLive)
	assert.True(t, a1.ACService)
	assert.Equal(t, "AC_FARE", a1.FareType)
	assert.Equal(t, "Pune Mahanagar Parivahan", a1.Agency)

	b2 := entries[1]
	assert.Equal(t, "B2", b2.Route)
	assert.False(t, b2.IsLive)
	assert.True(t, b2.Headway.IsZero())

	require.Len(t, features.Routes.Features, 2)
	r1, ok := findFeature(features.Routes, geo.FeatureRoute, "R1")
	require.True(t, ok)
	assert.Equal(t, "MultiLineString", r1.Geometry.Type)
	p, ok := geo.RepresentativePoint(r1)
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lon: 73.8860, Lat: 18.5040}, p, "middle shape vertex")

	r2, ok := findFeature(features.Routes, geo.FeatureRoute, "R2")
	require.True(t, ok, "route without shapes falls back to stop sequence")
	p, ok = geo.RepresentativePoint(r2)
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lon: 73.9260, Lat: 18.5089}, p)
}

func TestWriteFilesAndManifest(t *testing.T) {
	features, err := Build(parseTestFeed(t), BuildOptions{})
	require.NoError(t, err)

	dir := t.TempDir()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	m, err := WriteFiles(dir, features, BuildOptions{Source: "test", Now: now})
	require.NoError(t, err)
	assert.Equal(t, 3, m.StopCount)
	assert.Equal(t, 2, m.RouteCount)
	require.Len(t, m.Files, 2)
	assert.Len(t, m.Files[0].Checksum, 64)

	for _, name := range []string{StopsFile, RoutesFile, ManifestFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	read, err := ReadManifest(dir)
	require.NoError(t, err)
	generated, err := read.GeneratedTime()
	require.NoError(t, err)
	assert.True(t, generated.Equal(now))
	assert.Equal(t, "test", read.Source)
}

func TestBucketHeadways(t *testing.T) {
	clocks := []timetable.Clock{6 * 60, 6*60 + 10, 6*60 + 20, 12 * 60, 12*60 + 40}
	h := bucketHeadways(clocks)
	assert.Equal(t, 10, h.Buckets[models.BucketMorning])
	assert.Equal(t, 40, h.Buckets[models.BucketAfternoon])
	assert.True(t, bucketHeadways(clocks[:1]).IsZero())
}
