package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
)

// Parse reads a GTFS zip file and returns parsed data
func Parse(zipPath string) (*Data, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()
	return parseFiles(r.File)
}

// ParseReader parses a GTFS zip held in memory or any other ReaderAt
func ParseReader(ra io.ReaderAt, size int64) (*Data, error) {
	r, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	return parseFiles(r.File)
}

func parseFiles(zipFiles []*zip.File) (*Data, error) {
	data := &Data{
		Shapes: make(map[string][]ShapePoint),
	}

	// Feeds are sometimes zipped inside a top-level folder
	files := make(map[string]*zip.File)
	for _, f := range zipFiles {
		name := f.Name
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		files[name] = f
	}

	for _, required := range []string{"stops.txt", "routes.txt", "trips.txt", "stop_times.txt"} {
		if _, ok := files[required]; !ok {
			return nil, fmt.Errorf("feed is missing %s", required)
		}
	}

	readers := []struct {
		name string
		read func(row)
	}{
		{"agency.txt", func(r row) {
			data.Agency = append(data.Agency, Agency{
				AgencyID:   r.get("agency_id"),
				AgencyName: r.get("agency_name"),
				AgencyURL:  r.get("agency_url"),
			})
		}},
		{"routes.txt", func(r row) {
			data.Routes = append(data.Routes, Route{
				RouteID:        r.get("route_id"),
				AgencyID:       r.get("agency_id"),
				RouteShortName: r.get("route_short_name"),
				RouteLongName:  r.get("route_long_name"),
				RouteDesc:      r.get("route_desc"),
				RouteType:      r.getInt("route_type"),
				RouteColor:     r.get("route_color"),
				RouteTextColor: r.get("route_text_color"),
			})
		}},
		{"stops.txt", func(r row) {
			data.Stops = append(data.Stops, Stop{
				StopID:        r.get("stop_id"),
				StopCode:      r.get("stop_code"),
				StopName:      r.get("stop_name"),
				StopLat:       r.getFloat("stop_lat"),
				StopLon:       r.getFloat("stop_lon"),
				LocationType:  r.getInt("location_type"),
				ParentStation: r.get("parent_station"),
			})
		}},
		{"trips.txt", func(r row) {
			data.Trips = append(data.Trips, Trip{
				RouteID:      r.get("route_id"),
				ServiceID:    r.get("service_id"),
				TripID:       r.get("trip_id"),
				TripHeadsign: r.get("trip_headsign"),
				DirectionID:  r.getInt("direction_id"),
				ShapeID:      r.get("shape_id"),
			})
		}},
		{"shapes.txt", func(r row) {
			id := r.get("shape_id")
			data.Shapes[id] = append(data.Shapes[id], ShapePoint{
				ShapeID:         id,
				ShapePtLat:      r.getFloat("shape_pt_lat"),
				ShapePtLon:      r.getFloat("shape_pt_lon"),
				ShapePtSequence: r.getInt("shape_pt_sequence"),
			})
		}},
		{"stop_times.txt", func(r row) {
			data.StopTimes = append(data.StopTimes, StopTime{
				TripID:        r.get("trip_id"),
				ArrivalTime:   r.get("arrival_time"),
				DepartureTime: r.get("departure_time"),
				StopID:        r.get("stop_id"),
				StopSequence:  r.getInt("stop_sequence"),
			})
		}},
		{"fare_rules.txt", func(r row) {
			if routeID := r.get("route_id"); routeID != "" {
				data.FareRules = append(data.FareRules, FareRule{FareID: r.get("fare_id"), RouteID: routeID})
			}
		}},
	}

	for _, rd := range readers {
		f, ok := files[rd.name]
		if !ok {
			continue
		}
		if err := forEachRow(f, rd.read); err != nil {
			log.Printf("Warning: failed to parse %s: %v", rd.name, err)
		}
	}

	for shapeID := range data.Shapes {
		pts := data.Shapes[shapeID]
		sort.Slice(pts, func(i, j int) bool {
			return pts[i].ShapePtSequence < pts[j].ShapePtSequence
		})
	}

	log.Printf("GTFS parsed: %d routes, %d stops, %d trips, %d shapes, %d stop times",
		len(data.Routes), len(data.Stops), len(data.Trips), len(data.Shapes), len(data.StopTimes))

	return data, nil
}

// row is one CSV record addressed by header name
type row struct {
	record []string
	idx    map[string]int
}

func (r row) get(field string) string {
	if i, ok := r.idx[field]; ok && i < len(r.record) {
		return strings.TrimSpace(r.record[i])
	}
	return ""
}

func (r row) getInt(field string) int {
	v, _ := strconv.Atoi(r.get(field))
	return v
}

func (r row) getFloat(field string) float64 {
	v, _ := strconv.ParseFloat(r.get(field), 64)
	return v
}

// forEachRow streams a CSV file; malformed records are skipped
func forEachRow(f *zip.File, fn func(row)) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		return err
	}
	idx := makeIndex(header)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			continue
		}
		fn(row{record: record, idx: idx})
	}
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}
