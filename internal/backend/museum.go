package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

const museumPath = "/api/v1/museums/miniapp/museums"

// MuseumClient reads public museum data. No authentication is required.
type MuseumClient struct {
	t *Transport
}

// NewMuseumClient constructs a MuseumClient.
func NewMuseumClient(t *Transport) *MuseumClient {
	return &MuseumClient{t: t}
}

// GetMuseum loads museum metadata. Unknown ids report checkin.ErrMuseumNotFound.
func (c *MuseumClient) GetMuseum(ctx context.Context, id int64) (*checkin.Museum, error) {
	var m *checkin.Museum
	err := c.t.Do(ctx, Request{
		Op:     "museum.get",
		Method: http.MethodGet,
		Path:   museumPath + "/" + strconv.FormatInt(id, 10),
	}, &m)
	if errors.Is(err, checkin.ErrNotFound) || (err == nil && m == nil) {
		return nil, fmt.Errorf("getting museum %d: %w", id, checkin.ErrMuseumNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting museum %d: %w", id, err)
	}
	return m, nil
}

// NearbyQuery is the input of Nearby. Zero Page and PageSize default to 1 and 10.
type NearbyQuery struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
	Page      int
	PageSize  int
}

// Nearby lists museums around a point.
func (c *MuseumClient) Nearby(ctx context.Context, nq NearbyQuery) (*checkin.NearbyResult, error) {
	if nq.Page <= 0 {
		nq.Page = 1
	}
	if nq.PageSize <= 0 {
		nq.PageSize = defaultPageSize
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(nq.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(nq.Longitude, 'f', -1, 64))
	q.Set("page", strconv.Itoa(nq.Page))
	q.Set("pageSize", strconv.Itoa(nq.PageSize))
	if nq.RadiusKm > 0 {
		q.Set("radius", strconv.FormatFloat(nq.RadiusKm, 'f', -1, 64))
	}

	out := checkin.NearbyResult{
		Location: checkin.PlaceInfo{Latitude: nq.Latitude, Longitude: nq.Longitude},
		Museums:  checkin.Page[checkin.Museum]{Records: []checkin.Museum{}, Current: 1, Size: nq.PageSize},
	}
	err := c.t.Do(ctx, Request{
		Op:     "museum.nearby",
		Method: http.MethodGet,
		Path:   museumPath + "/nearby",
		Query:  q,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("listing museums near %f,%f: %w", nq.Latitude, nq.Longitude, err)
	}
	return &out, nil
}
