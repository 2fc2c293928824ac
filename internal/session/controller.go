// Package session drives one check-in editing session for one museum.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/neexbeast/museum-checkin/internal/auth"
	"github.com/neexbeast/museum-checkin/internal/checkin"
	"github.com/neexbeast/museum-checkin/internal/geo"
)

// Routes navigated to by the controller.
const (
	RouteAction = "/checkin/action"
	RouteHub    = "/checkin"
	RouteDetail = "/checkin/detail"
)

// Authenticator reports whether a session exists.
type Authenticator interface {
	IsLoggedIn(ctx context.Context) bool
}

// MuseumLoader loads museum metadata.
type MuseumLoader interface {
	GetMuseum(ctx context.Context, id int64) (*checkin.Museum, error)
}

// Checkins is the remote check-in API used by the controller.
type Checkins interface {
	Submit(ctx context.Context, d *checkin.Draft) (*checkin.SubmitResult, error)
	ListRecords(ctx context.Context, f checkin.RecordFilter, page, pageSize int) (*checkin.Page[checkin.Record], error)
	DeleteDraftRemote(ctx context.Context, draftID string) (bool, error)
}

// DraftStore is the local draft collection.
type DraftStore interface {
	Get(ctx context.Context, id string) *checkin.Draft
	Put(ctx context.Context, id string, d *checkin.Draft) (*checkin.Draft, error)
	FindLatestForMuseum(ctx context.Context, museumID int64) *checkin.Draft
	DeleteForMuseum(ctx context.Context, museumID int64) ([]string, error)
}

// Notifier is the UI the controller reports to.
type Notifier interface {
	// Toast shows a transient message.
	Toast(msg string)
	// Alert shows a blocking dialog with a single acknowledgment.
	Alert(title, msg string)
	Navigate(route string)
}

// Recorder counts session outcomes.
type Recorder interface {
	CheckinSubmitted(outcome string)
	DraftSaved(outcome string)
	LocationFailed()
}

type nopRecorder struct{}

func (nopRecorder) CheckinSubmitted(string) {}
func (nopRecorder) DraftSaved(string)       {}
func (nopRecorder) LocationFailed()         {}

// Deps are the collaborators of a Controller. Metrics may be nil.
type Deps struct {
	Auth     Authenticator
	Location geo.Provider
	Museums  MuseumLoader
	Checkins Checkins
	Drafts   DraftStore
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  Recorder
}

// Option configures a Controller.
type Option func(*Controller)

// WithThreshold sets the check-in radius in meters.
func WithThreshold(meters float64) Option {
	return func(c *Controller) { c.threshold = meters }
}

// WithClock replaces the clock used for new draft ids.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// OpenParams are the entry parameters of a session.
type OpenParams struct {
	MuseumID int64
	// DraftID loads exactly that draft.
	DraftID string
	// Fresh skips restoring the latest draft of the museum.
	Fresh bool
}

// Target is the login-gate destination that reopens a session with p.
func (p OpenParams) Target() auth.Target {
	v := url.Values{}
	v.Set("id", strconv.FormatInt(p.MuseumID, 10))
	if p.DraftID != "" {
		v.Set("draftId", p.DraftID)
	}
	if p.Fresh {
		v.Set("fresh", "true")
	}
	return auth.Target{Route: RouteAction, Params: v}
}

// ParamsFromTarget is the inverse of OpenParams.Target. Both "id" and
// "museumId" are accepted.
func ParamsFromTarget(t auth.Target) (OpenParams, error) {
	if t.Route != RouteAction {
		return OpenParams{}, fmt.Errorf("target %s is not a check-in session: %w", t.Route, ErrInvalidInput)
	}
	raw := t.Params.Get("id")
	if raw == "" {
		raw = t.Params.Get("museumId")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return OpenParams{}, fmt.Errorf("museum id %q: %w", raw, ErrInvalidInput)
	}
	return OpenParams{
		MuseumID: id,
		DraftID:  t.Params.Get("draftId"),
		Fresh:    t.Params.Get("fresh") == "true",
	}, nil
}

// Controller is the check-in session state machine. It is not safe for
// concurrent use; callers serialize operations.
type Controller struct {
	auth      Authenticator
	location  geo.Provider
	museums   MuseumLoader
	checkins  Checkins
	drafts    DraftStore
	notify    Notifier
	log       *slog.Logger
	metrics   Recorder
	threshold float64
	now       func() time.Time

	state    State
	params   OpenParams
	museum   *checkin.Museum
	user     *geo.Point
	locErr   error
	elig     geo.Eligibility
	reminded bool

	form           checkin.Draft
	currentDraftID string
	serverID       *int64
	submittedID    int64
	lastErr        error
}

// New constructs a Controller.
func New(d Deps, opts ...Option) *Controller {
	c := &Controller{
		auth:      d.Auth,
		location:  d.Location,
		museums:   d.Museums,
		checkins:  d.Checkins,
		drafts:    d.Drafts,
		notify:    d.Notifier,
		log:       d.Logger,
		metrics:   d.Metrics,
		threshold: geo.DefaultCheckinRadiusMeters,
		now:       time.Now,
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Open starts a session: login check, location, museum, eligibility and
// draft restore, in that order. A missing login returns
// *auth.LoginRequiredError carrying p. A museum that cannot be loaded is
// fatal for the session.
func (c *Controller) Open(ctx context.Context, p OpenParams) error {
	if p.MuseumID <= 0 {
		c.notify.Toast("参数错误")
		return fmt.Errorf("opening session: museum id %d: %w", p.MuseumID, ErrInvalidInput)
	}
	c.reset(p)

	if !c.auth.IsLoggedIn(ctx) {
		return &auth.LoginRequiredError{Target: p.Target()}
	}

	c.state = LocatingUser
	c.locate(ctx)

	c.state = LoadingMuseum
	m, err := c.museums.GetMuseum(ctx, p.MuseumID)
	if err != nil {
		c.state = MuseumLoadFailed
		if errors.Is(err, checkin.ErrMuseumNotFound) {
			c.notify.Alert("提示", "博物馆信息未找到")
		} else {
			c.notify.Alert("提示", "加载失败")
		}
		c.log.Error("loading museum", "museum_id", p.MuseumID, "err", err)
		return fmt.Errorf("opening session for museum %d: %w", p.MuseumID, err)
	}
	c.museum = m
	c.form.MuseumID = m.ID
	c.form.MuseumName = m.Name
	c.evaluate()

	c.restoreDraft(ctx, p)
	c.state = Ready
	c.log.Info("session opened",
		"museum_id", p.MuseumID,
		"draft_id", c.currentDraftID,
		"distance", c.elig.Formatted,
		"can_checkin", c.elig.CanCheckin,
	)
	return nil
}

// Resume reopens the session recorded in a login-gate target.
func (c *Controller) Resume(ctx context.Context, t auth.Target) error {
	p, err := ParamsFromTarget(t)
	if err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}
	return c.Open(ctx, p)
}

// RefreshLocation acquires the position again and recomputes eligibility.
// The distance reminder is not repeated.
func (c *Controller) RefreshLocation(ctx context.Context) error {
	if !c.state.editable() {
		return ErrNotReady
	}
	c.locate(ctx)
	c.evaluate()
	return nil
}

func (c *Controller) reset(p OpenParams) {
	*c = Controller{
		auth:      c.auth,
		location:  c.location,
		museums:   c.museums,
		checkins:  c.checkins,
		drafts:    c.drafts,
		notify:    c.notify,
		log:       c.log,
		metrics:   c.metrics,
		threshold: c.threshold,
		now:       c.now,
		params:    p,
	}
	c.form = checkin.Draft{MuseumID: p.MuseumID}
	checkin.Normalize(&c.form)
}

// locate is best-effort: failures degrade eligibility to fail-open.
func (c *Controller) locate(ctx context.Context) {
	p, err := c.location.CurrentLocation(ctx)
	if err != nil {
		c.user = nil
		c.locErr = err
		c.metrics.LocationFailed()
		c.log.Warn("acquiring location", "err", err)
		c.notify.Alert("位置权限", "获取位置失败，将无法计算距离。请在系统设置中开启位置权限。")
		return
	}
	c.user = &p
	c.locErr = nil
}

func (c *Controller) evaluate() {
	var museumPoint *geo.Point
	if c.museum != nil && c.museum.HasCoordinates() {
		museumPoint = &geo.Point{Latitude: *c.museum.Latitude, Longitude: *c.museum.Longitude}
	}
	c.elig = geo.Evaluate(c.user, museumPoint, c.threshold)

	if c.elig.Known && !c.elig.CanCheckin && !c.reminded {
		c.reminded = true
		c.notify.Alert("距离提醒", fmt.Sprintf(
			"您当前距离博物馆约%s，建议在%d米范围内打卡以获得更好的体验。",
			c.elig.Formatted, int(c.threshold)))
	}
}

func (c *Controller) restoreDraft(ctx context.Context, p OpenParams) {
	var d *checkin.Draft
	switch {
	case p.DraftID != "":
		c.currentDraftID = p.DraftID
		d = c.drafts.Get(ctx, p.DraftID)
		if d == nil {
			c.log.Info("requested draft not found", "draft_id", p.DraftID)
			return
		}
		if d.MuseumID != p.MuseumID {
			c.log.Warn("requested draft belongs to another museum",
				"draft_id", p.DraftID, "draft_museum_id", d.MuseumID, "museum_id", p.MuseumID)
			c.currentDraftID = ""
			return
		}
	case !p.Fresh:
		d = c.drafts.FindLatestForMuseum(ctx, p.MuseumID)
		if d == nil {
			return
		}
		c.currentDraftID = d.DraftID
	default:
		return
	}

	c.form.Photos = append([]string{}, d.Photos...)
	c.form.Feeling = d.Feeling
	c.form.Rating = d.Rating
	c.form.Mood = d.Mood
	c.form.Weather = d.Weather
	c.form.Companions = append([]string{}, d.Companions...)
	c.form.Tags = append([]string{}, d.Tags...)
	c.serverID = d.ServerID
	c.notify.Toast("已恢复暂存内容")
}

// CanSubmit reports whether a final submission would pass every check.
func (c *Controller) CanSubmit() bool {
	return c.elig.CanCheckin && checkin.Validate(&c.form) == nil
}

// Snapshot returns the current view. A retained error is reported once.
func (c *Controller) Snapshot() View {
	v := View{
		State:          c.state,
		MuseumID:       c.params.MuseumID,
		Distance:       c.elig.Formatted,
		DistanceMeters: c.elig.DistanceMeters,
		DistanceKnown:  c.elig.Known,
		CanCheckin:     c.elig.CanCheckin,
		LocationFailed: c.locErr != nil,
		Photos:         append([]string{}, c.form.Photos...),
		Feeling:        c.form.Feeling,
		Rating:         c.form.Rating,
		RatingText:     checkin.RatingLabel(c.form.Rating),
		Mood:           c.form.Mood,
		Weather:        c.form.Weather,
		Companions:     append([]string{}, c.form.Companions...),
		Tags:           append([]string{}, c.form.Tags...),
		CurrentDraftID: c.currentDraftID,
		CanSubmit:      c.CanSubmit(),
		SubmittedID:    c.submittedID,
	}
	if c.museum != nil {
		v.MuseumName = c.museum.Name
		v.Address = c.museum.Address
	}
	if c.lastErr != nil {
		v.Error = c.lastErr.Error()
		c.lastErr = nil
	}
	return v
}
