package gtfs

// Data represents all parsed GTFS data
type Data struct {
	Agency    []Agency
	Routes    []Route
	Stops     []Stop
	Trips     []Trip
	Shapes    map[string][]ShapePoint // keyed by shape_id
	StopTimes []StopTime
	FareRules []FareRule
}

// Agency represents an agency from agency.txt
type Agency struct {
	AgencyID   string
	AgencyName string
	AgencyURL  string
}

// Route represents a route from routes.txt
type Route struct {
	RouteID        string
	AgencyID       string
	RouteShortName string
	RouteLongName  string
	RouteDesc      string
	RouteType      int
	RouteColor     string
	RouteTextColor string
}

// DisplayName is the name shown on boards
func (r Route) DisplayName() string {
	if r.RouteShortName != "" {
		return r.RouteShortName
	}
	if r.RouteLongName != "" {
		return r.RouteLongName
	}
	return r.RouteID
}

// Stop represents a stop from stops.txt
type Stop struct {
	StopID        string
	StopCode      string
	StopName      string
	StopLat       float64
	StopLon       float64
	LocationType  int
	ParentStation string
}

// Trip represents a trip from trips.txt
type Trip struct {
	RouteID      string
	ServiceID    string
	TripID       string
	TripHeadsign string
	DirectionID  int
	ShapeID      string
}

// ShapePoint represents a point from shapes.txt
type ShapePoint struct {
	ShapeID         string
	ShapePtLat      float64
	ShapePtLon      float64
	ShapePtSequence int
}

// StopTime represents a stop time from stop_times.txt
type StopTime struct {
	TripID        string
	ArrivalTime   string
	DepartureTime string
	StopID        string
	StopSequence  int
}

// FareRule links a fare to a route (fare_rules.txt)
type FareRule struct {
	FareID  string
	RouteID string
}
