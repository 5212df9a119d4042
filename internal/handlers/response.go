package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/transit-explorer/core/internal/geo"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Cache lifetimes, roughly half of the poll interval
const (
	cacheLive   = "public, max-age=15, stale-while-revalidate=10"
	cacheStatic = "public, max-age=300, stale-while-revalidate=60"
)

func writeJSON(w http.ResponseWriter, status int, cacheControl string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
		w.Header().Set("Vary", "Accept-Encoding")
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = map[string]interface{}{"internal": err.Error()}
	}
	writeJSON(w, status, "", resp)
}

var errBadCoordinate = errors.New("lat and lon must be valid WGS84 coordinates")

// queryPoint reads lat/lon query parameters
func queryPoint(r *http.Request) (geo.Point, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return geo.Point{}, errBadCoordinate
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return geo.Point{}, errBadCoordinate
	}
	if !geo.IsValidCoordinate(lat, lon) {
		return geo.Point{}, errBadCoordinate
	}
	return geo.Point{Lon: lon, Lat: lat}, nil
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64); err == nil && v > 0 {
		return v
	}
	return fallback
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
