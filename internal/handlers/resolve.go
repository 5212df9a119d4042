package handlers

import (
	"net/http"

	"github.com/transit-explorer/core/internal/features"
	"github.com/transit-explorer/core/internal/geo"
	"github.com/transit-explorer/core/internal/models"
)

// FeatureSource is the feature catalogue the resolver searches
type FeatureSource interface {
	features.Querier
	StopLocator
}

// ResolveHandler turns a map click into the entity under it
type ResolveHandler struct {
	source FeatureSource
}

// NewResolveHandler creates a resolver over source
func NewResolveHandler(source FeatureSource) *ResolveHandler {
	return &ResolveHandler{source: source}
}

// ResolveResponse is the JSON response for GET /api/resolve
type ResolveResponse struct {
	Type       geo.FeatureType `json:"type"`
	ID         string          `json:"id"`
	Point      geo.Point       `json:"point"`
	DistanceKM *float64        `json:"distanceKm,omitempty"`
	Stop       *models.Stop    `json:"stop,omitempty"`
	Route      *models.Route   `json:"route,omitempty"`
}

// Resolve handles GET /api/resolve?lat=&lon=&type=
// type is "stop", "route" or empty; empty tries stops before routes.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	q, err := queryPoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	var kinds []geo.FeatureType
	switch t := geo.FeatureType(r.URL.Query().Get("type")); t {
	case geo.FeatureStop, geo.FeatureRoute:
		kinds = []geo.FeatureType{t}
	case "":
		kinds = []geo.FeatureType{geo.FeatureStop, geo.FeatureRoute}
	default:
		writeJSON(w, http.StatusBadRequest, "", ErrorResponse{
			Error:   "type must be stop or route",
			Details: map[string]interface{}{"type": string(t)},
		})
		return
	}

	for _, kind := range kinds {
		match, ok := geo.Nearest(q, h.candidates(q, kind), geo.ClickRadiusKM)
		if !ok {
			continue
		}
		id, _ := geo.ResolveID(match.Feature, kind)
		resp := ResolveResponse{Type: kind, ID: id, Point: match.Point}
		if match.DistanceKM >= 0 {
			d := match.DistanceKM
			resp.DistanceKM = &d
		}
		switch kind {
		case geo.FeatureStop:
			// a broken timetable still identifies the stop
			stop, _ := features.ToStop(match.Feature)
			resp.Stop = &stop
		case geo.FeatureRoute:
			route := features.ToRoute(match.Feature)
			resp.Route = &route
		}
		writeJSON(w, http.StatusOK, cacheStatic, resp)
		return
	}

	writeJSON(w, http.StatusNotFound, "", ErrorResponse{
		Error:   "Nothing at this location",
		Details: map[string]interface{}{"radiusKm": geo.ClickRadiusKM},
	})
}

// candidates returns one feature per entity of kind near q
func (h *ResolveHandler) candidates(q geo.Point, kind geo.FeatureType) []geo.RawFeature {
	if kind == geo.FeatureStop {
		return h.source.Index().Candidates(q, geo.ClickRadiusKM)
	}
	box := features.Around(q, geo.ClickRadiusKM)
	raw := h.source.QueryFeatures(features.Filter{Type: kind, BBox: &box})
	return geo.Within(q, geo.Dedupe(raw, kind), geo.ClickRadiusKM)
}
