package backendtest

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/neexbeast/museum-checkin/internal/checkin"
	"github.com/neexbeast/museum-checkin/internal/geo"
)

func (s *Server) handleMuseum(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpMuseum) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid id")
		return
	}

	s.mu.Lock()
	m, found := s.museums[id]
	s.mu.Unlock()
	if !found {
		fail(w, http.StatusNotFound, "博物馆不存在")
		return
	}
	ok(w, m)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpNearby) {
		return
	}
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("longitude"), 64)
	if errLat != nil || errLon != nil {
		fail(w, http.StatusBadRequest, "invalid coordinates")
		return
	}
	radiusKm, err := strconv.ParseFloat(q.Get("radius"), 64)
	if err != nil || radiusKm <= 0 {
		radiusKm = 10
	}
	page := atoiDefault(q.Get("page"), 1)
	size := atoiDefault(q.Get("pageSize"), 10)
	origin := geo.Point{Latitude: lat, Longitude: lon}

	type hit struct {
		m checkin.Museum
		d float64
	}
	var hits []hit
	s.mu.Lock()
	for _, m := range s.museums {
		if !m.HasCoordinates() {
			continue
		}
		d := origin.DistanceTo(geo.Point{Latitude: *m.Latitude, Longitude: *m.Longitude})
		if d <= radiusKm*1000 {
			hits = append(hits, hit{m, d})
		}
	}
	s.mu.Unlock()
	sort.Slice(hits, func(i, j int) bool { return hits[i].d < hits[j].d })

	out := checkin.NearbyResult{
		Location: checkin.PlaceInfo{Latitude: lat, Longitude: lon},
		Museums:  checkin.Page[checkin.Museum]{Records: []checkin.Museum{}, Total: len(hits), Current: page, Size: size},
	}
	for i := (page - 1) * size; i < len(hits) && i < page*size; i++ {
		out.Museums.Records = append(out.Museums.Records, hits[i].m)
	}
	ok(w, out)
}
