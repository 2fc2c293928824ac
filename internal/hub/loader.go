// Package hub loads the check-in overview: stats, recent check-ins,
// nearby museums and saved drafts.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/museum-checkin/internal/backend"
	"github.com/neexbeast/museum-checkin/internal/checkin"
	"github.com/neexbeast/museum-checkin/internal/drafts"
	"github.com/neexbeast/museum-checkin/internal/geo"
)

// KeyPreferredDistance stores the nearby radius chosen by the user, in km.
const KeyPreferredDistance = "preferredDistance"

const (
	// DefaultRadiusKm is used when no preference is stored.
	DefaultRadiusKm = 10
	// legacyRadiusKm was offered by older builds and now maps to the default.
	legacyRadiusKm = 20

	nearbyFetchRadiusKm = 50
	nearbyFetchPageSize = 100
	recentPageSize      = 5
)

// RadiusOptions are the selectable nearby radii in km.
var RadiusOptions = []int{1, 3, 5, 10}

type authenticator interface {
	IsLoggedIn(ctx context.Context) bool
}

type checkinsFetcher interface {
	Stats(ctx context.Context) (*checkin.Stats, error)
	ListRecords(ctx context.Context, f checkin.RecordFilter, page, pageSize int) (*checkin.Page[checkin.Record], error)
}

type nearbyFetcher interface {
	Nearby(ctx context.Context, nq backend.NearbyQuery) (*checkin.NearbyResult, error)
}

type draftLister interface {
	Summaries(ctx context.Context) []drafts.Summary
}

// KV persists the radius preference.
type KV interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// Overview is everything the hub shows. Parts that failed to load are empty.
type Overview struct {
	LoggedIn bool
	Stats    *checkin.Stats
	Recent   []checkin.Record
	Place    *checkin.PlaceInfo
	Nearby   []geo.Ranked
	Drafts   []drafts.Summary
	RadiusKm int
}

// Loader aggregates the hub parts in parallel.
type Loader struct {
	auth      authenticator
	location  geo.Provider
	checkins  checkinsFetcher
	museums   nearbyFetcher
	drafts    draftLister
	kv        KV
	log       *slog.Logger
	threshold float64
}

// NewLoader constructs a Loader.
func NewLoader(auth authenticator, location geo.Provider, checkins checkinsFetcher, museums nearbyFetcher, d draftLister, kv KV, log *slog.Logger) *Loader {
	return &Loader{
		auth:      auth,
		location:  location,
		checkins:  checkins,
		museums:   museums,
		drafts:    d,
		kv:        kv,
		log:       log,
		threshold: geo.DefaultCheckinRadiusMeters,
	}
}

// WithThreshold sets the check-in radius used to tag nearby museums.
func (l *Loader) WithThreshold(meters float64) *Loader {
	l.threshold = meters
	return l
}

// PreferredRadius returns the stored nearby radius in km.
func (l *Loader) PreferredRadius(ctx context.Context) int {
	var km int
	found, err := l.kv.GetJSON(ctx, KeyPreferredDistance, &km)
	if err != nil {
		l.log.Warn("reading preferred distance", "err", err)
		return DefaultRadiusKm
	}
	if !found || km <= 0 || km == legacyRadiusKm {
		return DefaultRadiusKm
	}
	return km
}

// SetPreferredRadius stores km, which must be one of RadiusOptions.
func (l *Loader) SetPreferredRadius(ctx context.Context, km int) error {
	if !slices.Contains(RadiusOptions, km) {
		return fmt.Errorf("radius %dkm is not one of %v", km, RadiusOptions)
	}
	if err := l.kv.SetJSON(ctx, KeyPreferredDistance, km); err != nil {
		return &checkin.StorageError{Op: "set", Key: KeyPreferredDistance, Err: err}
	}
	return nil
}

// Load fetches every hub part in parallel. Part failures are non-fatal:
// partial data is returned with failures logged. Stats, recent check-ins
// and drafts are only loaded for a logged-in user.
func (l *Loader) Load(ctx context.Context) (*Overview, error) {
	out := &Overview{
		LoggedIn: l.auth.IsLoggedIn(ctx),
		RadiusKm: l.PreferredRadius(ctx),
	}

	g, gCtx := errgroup.WithContext(ctx)

	if out.LoggedIn {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("stats load panicked", "recover", r)
					err = fmt.Errorf("stats load panicked: %v", r)
				}
			}()
			stats, loadErr := l.checkins.Stats(gCtx)
			if loadErr != nil {
				l.log.Warn("stats load failed", "err", loadErr)
				return nil
			}
			out.Stats = stats
			return nil
		})

		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("recent check-ins load panicked", "recover", r)
					err = fmt.Errorf("recent check-ins load panicked: %v", r)
				}
			}()
			final := false
			page, loadErr := l.checkins.ListRecords(gCtx, checkin.RecordFilter{IsDraft: &final}, 1, recentPageSize)
			if loadErr != nil {
				l.log.Warn("recent check-ins load failed", "err", loadErr)
				return nil
			}
			out.Recent = page.Records
			return nil
		})

		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("drafts load panicked", "recover", r)
					err = fmt.Errorf("drafts load panicked: %v", r)
				}
			}()
			out.Drafts = l.drafts.Summaries(gCtx)
			return nil
		})
	}

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				l.log.Error("nearby load panicked", "recover", r)
				err = fmt.Errorf("nearby load panicked: %v", r)
			}
		}()
		place, ranked, loadErr := l.nearby(gCtx, out.RadiusKm)
		if loadErr != nil {
			l.log.Warn("nearby load failed", "radius_km", out.RadiusKm, "err", loadErr)
			return nil
		}
		out.Place = place
		out.Nearby = ranked
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading check-in hub: %w", err)
	}
	return out, nil
}

// nearby fetches a wide area and narrows it locally to radiusKm.
func (l *Loader) nearby(ctx context.Context, radiusKm int) (*checkin.PlaceInfo, []geo.Ranked, error) {
	origin, err := l.location.CurrentLocation(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquiring location: %w", err)
	}

	res, err := l.museums.Nearby(ctx, backend.NearbyQuery{
		Latitude:  origin.Latitude,
		Longitude: origin.Longitude,
		RadiusKm:  nearbyFetchRadiusKm,
		Page:      1,
		PageSize:  nearbyFetchPageSize,
	})
	if err != nil {
		return nil, nil, err
	}

	candidates := make([]geo.Candidate, 0, len(res.Museums.Records))
	for _, m := range res.Museums.Records {
		c := geo.Candidate{ID: m.ID, Name: m.Name}
		if m.HasCoordinates() {
			c.Point = &geo.Point{Latitude: *m.Latitude, Longitude: *m.Longitude}
		}
		candidates = append(candidates, c)
	}
	ranked := geo.RankNearby(origin, candidates, float64(radiusKm), geo.DefaultNearbyLimit, l.threshold)
	return &res.Location, ranked, nil
}
