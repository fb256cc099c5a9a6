package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mtd-arrivals/internal/arrivals"
	"mtd-arrivals/internal/favorites"
	"mtd-arrivals/internal/geo"
	"mtd-arrivals/internal/mtd"
	"mtd-arrivals/internal/stops"
	"mtd-arrivals/internal/transit"
)

const clientIDHeader = "X-Client-ID"

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type stopResponse struct {
	transit.ParentStop
	Favorite bool `json:"favorite"`
}

type stopsResponse struct {
	Stops []stopResponse `json:"stops"`
	Count int            `json:"count"`
}

type stopDetailResponse struct {
	Stop     transit.ParentStop `json:"stop"`
	Map      *arrivals.MapView  `json:"map,omitempty"`
	Favorite bool               `json:"favorite"`
}

type nearbyStop struct {
	transit.NearbyStop
	Distance string `json:"distance"`
}

type nearbyResponse struct {
	Origin geo.Point    `json:"origin"`
	Stops  []nearbyStop `json:"stops"`
}

type favoritesResponse struct {
	favorites.Document
	Stops []transit.ParentStop `json:"stops"`
}

type favoriteStateResponse struct {
	favorites.Document
	StopID   string `json:"stopId"`
	Favorite bool   `json:"favorite"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// ownerOf identifies whose favorites a request reads or changes.
func ownerOf(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(clientIDHeader)); id != "" {
		return id
	}
	return favorites.DefaultOwner
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.favs.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "error",
			"database":  "disconnected",
			"stops":     s.index.Len(),
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"database":  "connected",
		"stops":     s.index.Len(),
		"timestamp": time.Now().UTC(),
	})
}

// searchStops handles GET /api/stops?q=&favorites=true
func (s *Server) searchStops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	favs, err := s.favs.List(r.Context(), ownerOf(r))
	if err != nil {
		s.storeError(w, err)
		return
	}
	set := stops.IDSet(favs)

	var only map[string]bool
	if onlyFavs, _ := strconv.ParseBool(q.Get("favorites")); onlyFavs {
		only = set
	}
	found := s.index.Search(q.Get("q"), only)

	resp := stopsResponse{Stops: make([]stopResponse, 0, len(found)), Count: len(found)}
	for _, st := range found {
		resp.Stops = append(resp.Stops, stopResponse{ParentStop: st, Favorite: set[st.ID]})
	}
	writeJSON(w, http.StatusOK, resp)
}

// getStop handles GET /api/stops/{stopID}
func (s *Server) getStop(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	stop, err := s.index.Get(stopID)
	if err != nil {
		stopNotFound(w, stopID)
		return
	}
	fav, err := s.favs.Contains(r.Context(), ownerOf(r), stopID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	resp := stopDetailResponse{Stop: stop, Favorite: fav}
	if mv, err := arrivals.BuildMapView(stop); err == nil {
		resp.Map = &mv
	}
	writeJSON(w, http.StatusOK, resp)
}

// getArrivals handles GET /api/stops/{stopID}/arrivals
func (s *Server) getArrivals(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	board, err := s.boards.Board(r.Context(), stopID)
	if err != nil {
		if errors.Is(err, stops.ErrNotFound) {
			stopNotFound(w, stopID)
			return
		}
		s.upstreamError(w, "Failed to retrieve departures", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, board)
}

// getNearby handles GET /api/nearby?lat=&lon=
func (s *Server) getNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, "lat and lon must be numbers", map[string]interface{}{
			"lat": q.Get("lat"),
			"lon": q.Get("lon"),
		})
		return
	}
	p := geo.Point{Lat: lat, Lon: lon}
	if err := s.validate.Struct(p); err != nil {
		writeError(w, http.StatusBadRequest, "Coordinates out of range", map[string]interface{}{
			"validation": err.Error(),
		})
		return
	}

	found, err := s.nearby.GetStopsByLatLon(r.Context(), p)
	if err != nil {
		s.upstreamError(w, "Failed to retrieve nearby stops", err)
		return
	}
	resp := nearbyResponse{Origin: p, Stops: make([]nearbyStop, 0, len(found))}
	for _, n := range found {
		resp.Stops = append(resp.Stops, nearbyStop{NearbyStop: n, Distance: arrivals.NearbyDistance(n.DistanceFeet)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// listFavorites handles GET /api/favorites
func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	list, err := s.favs.List(r.Context(), ownerOf(r))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoritesResponse{
		Document: favorites.Document{List: list},
		Stops:    s.index.Filter(stops.IDSet(list)),
	})
}

// addFavorite handles PUT /api/favorites/{stopID}
func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	if _, err := s.index.Get(stopID); err != nil {
		stopNotFound(w, stopID)
		return
	}
	owner := ownerOf(r)
	if err := s.favs.Add(r.Context(), owner, stopID); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeFavoriteState(w, r, owner, stopID, true)
}

// removeFavorite handles DELETE /api/favorites/{stopID}. Stops that are no
// longer served can still be removed.
func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	owner := ownerOf(r)
	if err := s.favs.Remove(r.Context(), owner, stopID); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeFavoriteState(w, r, owner, stopID, false)
}

// toggleFavorite handles POST /api/favorites/{stopID}/toggle
func (s *Server) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	if _, err := s.index.Get(stopID); err != nil {
		stopNotFound(w, stopID)
		return
	}
	owner := ownerOf(r)
	state, err := s.favs.Toggle(r.Context(), owner, stopID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeFavoriteState(w, r, owner, stopID, state)
}

func (s *Server) writeFavoriteState(w http.ResponseWriter, r *http.Request, owner, stopID string, state bool) {
	list, err := s.favs.List(r.Context(), owner)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteStateResponse{
		Document: favorites.Document{List: list},
		StopID:   stopID,
		Favorite: state,
	})
}

// streamStop handles GET /ws/stops/{stopID}
func (s *Server) streamStop(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")
	if _, err := s.index.Get(stopID); err != nil {
		stopNotFound(w, stopID)
		return
	}
	s.stream.ServeStop(w, r, stopID)
}

func stopNotFound(w http.ResponseWriter, stopID string) {
	writeError(w, http.StatusNotFound, "Stop not found", map[string]interface{}{
		"stopId": stopID,
	})
}

// upstreamError reports provider failures without echoing the provider's
// error text to the client.
func (s *Server) upstreamError(w http.ResponseWriter, msg string, err error) {
	s.logger.Warn(msg, zap.Error(err))
	var details map[string]interface{}
	var se *mtd.StatusError
	if errors.As(err, &se) {
		details = map[string]interface{}{
			"endpoint": se.Endpoint,
			"status":   se.StatusCode,
		}
	}
	writeError(w, http.StatusBadGateway, msg, details)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	s.logger.Error("favorites store failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Failed to access favorites", map[string]interface{}{
		"internal": err.Error(),
	})
}
