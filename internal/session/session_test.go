package session_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/museum-checkin/internal/auth"
	"github.com/neexbeast/museum-checkin/internal/backend"
	"github.com/neexbeast/museum-checkin/internal/backendtest"
	"github.com/neexbeast/museum-checkin/internal/checkin"
	"github.com/neexbeast/museum-checkin/internal/drafts"
	"github.com/neexbeast/museum-checkin/internal/geo"
	"github.com/neexbeast/museum-checkin/internal/localstore"
	"github.com/neexbeast/museum-checkin/internal/session"
)

const (
	museumID = 42
	otherID  = 43
	userID   = 7
)

var museumPoint = geo.Point{Latitude: 39.9163, Longitude: 116.3972}

func north(p geo.Point, meters float64) geo.Point {
	return geo.Point{
		Latitude:  p.Latitude + meters/geo.EarthRadiusMeters*180/math.Pi,
		Longitude: p.Longitude,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []string
	alerts []string
	routes []string
}

func (n *recordingNotifier) Toast(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, msg)
}

func (n *recordingNotifier) Alert(title, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, title+": "+msg)
}

func (n *recordingNotifier) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNotifier) lastToast() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.toasts) == 0 {
		return ""
	}
	return n.toasts[len(n.toasts)-1]
}

func (n *recordingNotifier) alertsWithTitle(title string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, a := range n.alerts {
		if strings.HasPrefix(a, title+":") {
			count++
		}
	}
	return count
}

type countingRecorder struct {
	mu       sync.Mutex
	submits  map[string]int
	saves    map[string]int
	locFails int
}

func (r *countingRecorder) CheckinSubmitted(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submits[outcome]++
}

func (r *countingRecorder) DraftSaved(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves[outcome]++
}

func (r *countingRecorder) LocationFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locFails++
}

// hookCheckins runs onSubmit before delegating a submit.
type hookCheckins struct {
	session.Checkins
	onSubmit func()
}

func (h *hookCheckins) Submit(ctx context.Context, d *checkin.Draft) (*checkin.SubmitResult, error) {
	if h.onSubmit != nil {
		h.onSubmit()
	}
	return h.Checkins.Submit(ctx, d)
}

type fixture struct {
	fake     *backendtest.Server
	auth     *auth.Session
	drafts   *drafts.Store
	draftsMR *miniredis.Miniredis
	checkins *backend.CheckinClient
	museums  *backend.MuseumClient
	notify   *recordingNotifier
	metrics  *countingRecorder
	log      *slog.Logger

	now    time.Time
	user   geo.Point
	locErr error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		notify:  &recordingNotifier{},
		metrics: &countingRecorder{submits: map[string]int{}, saves: map[string]int{}},
		log:     slog.New(slog.DiscardHandler),
		now:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		user:    north(museumPoint, 100),
	}

	authMR := miniredis.RunT(t)
	f.draftsMR = miniredis.RunT(t)
	authClient := redis.NewClient(&redis.Options{Addr: authMR.Addr()})
	draftsClient := redis.NewClient(&redis.Options{Addr: f.draftsMR.Addr()})
	t.Cleanup(func() {
		_ = authClient.Close()
		_ = draftsClient.Close()
	})

	fake, url := backendtest.Start(t)
	fake.AddUser(userID, "alice", "pw")
	fake.AddMuseum(museum(museumID, "故宫博物院", museumPoint))
	fake.AddMuseum(museum(otherID, "国家博物馆", north(museumPoint, 2000)))
	f.fake = fake

	transport := backend.NewTransport(url, 2*time.Second, f.log)
	f.auth = auth.NewSession(localstore.New(authClient, "phone"), transport, f.log)
	f.checkins = backend.NewCheckinClient(transport, f.auth)
	f.museums = backend.NewMuseumClient(transport)
	f.drafts = drafts.NewStore(localstore.New(draftsClient, "phone"), f.log).
		WithClock(func() time.Time { return f.now })
	return f
}

func museum(id int64, name string, p geo.Point) checkin.Museum {
	lat, lon := p.Latitude, p.Longitude
	return checkin.Museum{ID: id, Name: name, Address: "北京市", Latitude: &lat, Longitude: &lon}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	_, err := f.auth.Login(context.Background(), auth.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
}

func (f *fixture) controller() *session.Controller {
	return f.controllerWith(f.checkins)
}

func (f *fixture) controllerWith(c session.Checkins) *session.Controller {
	return session.New(session.Deps{
		Auth: f.auth,
		Location: geo.Func(func(context.Context) (geo.Point, error) {
			if f.locErr != nil {
				return geo.Point{}, f.locErr
			}
			return f.user, nil
		}),
		Museums:  f.museums,
		Checkins: c,
		Drafts:   f.drafts,
		Notifier: f.notify,
		Logger:   f.log,
		Metrics:  f.metrics,
	}, session.WithClock(func() time.Time { return f.now }))
}

// open logs in and opens a session for museumID.
func (f *fixture) open(t *testing.T, p session.OpenParams) *session.Controller {
	t.Helper()
	if !f.auth.IsLoggedIn(context.Background()) {
		f.login(t)
	}
	c := f.controller()
	require.NoError(t, c.Open(context.Background(), p))
	return c
}

func fill(t *testing.T, c *session.Controller) {
	t.Helper()
	require.NoError(t, c.SetRating(4))
	require.NoError(t, c.SelectMood("happy"))
	require.NoError(t, c.SelectWeather("sunny"))
	require.NoError(t, c.SetFeeling("青铜器展厅很震撼"))
}

func (f *fixture) remoteDrafts(museumID int64) []checkin.Record {
	var out []checkin.Record
	for _, r := range f.fake.Records(userID) {
		if r.IsDraft && r.MuseumID == museumID {
			out = append(out, r)
		}
	}
	return out
}

func TestOpen_WithinRadius(t *testing.T) {
	f := newFixture(t)
	f.user = north(museumPoint, 450)

	c := f.open(t, session.OpenParams{MuseumID: museumID})

	v := c.Snapshot()
	assert.Equal(t, session.Ready, v.State)
	assert.Equal(t, "故宫博物院", v.MuseumName)
	assert.Equal(t, "450m", v.Distance)
	assert.True(t, v.DistanceKnown)
	assert.True(t, v.CanCheckin)
	assert.Empty(t, f.notify.alerts)
}

func TestOpen_OutsideRadiusRemindsOnce(t *testing.T) {
	f := newFixture(t)
	f.user = north(museumPoint, 650)

	c := f.open(t, session.OpenParams{MuseumID: museumID})

	v := c.Snapshot()
	assert.Equal(t, "650m", v.Distance)
	assert.False(t, v.CanCheckin)
	require.Equal(t, 1, f.notify.alertsWithTitle("距离提醒"))
	assert.Contains(t, f.notify.alerts[0], "650m")
	assert.Contains(t, f.notify.alerts[0], "500米")

	f.user = north(museumPoint, 800)
	require.NoError(t, c.RefreshLocation(context.Background()))
	assert.Equal(t, "800m", c.Snapshot().Distance)
	assert.Equal(t, 1, f.notify.alertsWithTitle("距离提醒"))
}

func TestOpen_LocationFailureFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.locErr = geo.ErrPermissionDenied

	c := f.open(t, session.OpenParams{MuseumID: museumID})

	v := c.Snapshot()
	assert.Equal(t, session.Ready, v.State)
	assert.Equal(t, geo.UnknownDistance, v.Distance)
	assert.False(t, v.DistanceKnown)
	assert.True(t, v.CanCheckin)
	assert.True(t, v.LocationFailed)
	assert.Equal(t, 1, f.notify.alertsWithTitle("位置权限"))
	assert.Equal(t, 1, f.metrics.locFails)

	fill(t, c)
	_, err := c.Submit(context.Background())
	require.NoError(t, err)
}

func TestOpen_MuseumWithoutCoordinatesFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.fake.AddMuseum(checkin.Museum{ID: 50, Name: "无坐标博物馆"})

	c := f.open(t, session.OpenParams{MuseumID: 50})

	v := c.Snapshot()
	assert.True(t, v.CanCheckin)
	assert.Equal(t, geo.UnknownDistance, v.Distance)
	assert.Zero(t, f.notify.alertsWithTitle("距离提醒"))
}

func TestOpen_InvalidMuseumID(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	err := f.controller().Open(context.Background(), session.OpenParams{})
	assert.ErrorIs(t, err, session.ErrInvalidInput)
	assert.Equal(t, "参数错误", f.notify.lastToast())
}

func TestOpen_MuseumNotFoundIsFatal(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	c := f.controller()

	err := c.Open(context.Background(), session.OpenParams{MuseumID: 999})
	require.ErrorIs(t, err, checkin.ErrMuseumNotFound)
	assert.Equal(t, session.MuseumLoadFailed, c.State())
	assert.Equal(t, 1, f.notify.alertsWithTitle("提示"))
	assert.Contains(t, f.notify.alerts[0], "博物馆信息未找到")

	assert.ErrorIs(t, c.AddTag("x"), session.ErrNotReady)
	_, err = c.SaveDraft(context.Background())
	assert.ErrorIs(t, err, session.ErrNotReady)
	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, session.ErrNotReady)
}

func TestOpen_MuseumLoadErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.fake.FailNext(backendtest.OpMuseum, http.StatusInternalServerError)
	c := f.controller()

	err := c.Open(context.Background(), session.OpenParams{MuseumID: museumID})
	require.Error(t, err)
	assert.NotErrorIs(t, err, checkin.ErrMuseumNotFound)
	assert.Equal(t, session.MuseumLoadFailed, c.State())
	assert.Contains(t, f.notify.alerts[0], "加载失败")
}

func TestOpen_LoginRequiredRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := f.controller()
	params := session.OpenParams{MuseumID: museumID, DraftID: "42_1700000000000"}

	err := c.Open(context.Background(), params)
	var lr *auth.LoginRequiredError
	require.ErrorAs(t, err, &lr)
	assert.ErrorIs(t, err, checkin.ErrUnauthenticated)
	assert.Equal(t, session.RouteAction, lr.Target.Route)

	target, ok, err := auth.RedirectTarget(lr.Target.LoginURL())
	require.NoError(t, err)
	require.True(t, ok)

	got, err := session.ParamsFromTarget(target)
	require.NoError(t, err)
	assert.Equal(t, params, got)

	f.login(t)
	require.NoError(t, c.Resume(context.Background(), target))
	assert.Equal(t, session.Ready, c.State())
	assert.Equal(t, int64(museumID), c.Snapshot().MuseumID)
}

func TestParamsFromTarget_Invalid(t *testing.T) {
	_, err := session.ParamsFromTarget(auth.Target{Route: "/museum"})
	assert.ErrorIs(t, err, session.ErrInvalidInput)

	_, err = session.ParamsFromTarget(session.OpenParams{MuseumID: 0}.Target())
	assert.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestSaveDraft_RemoteThenUpdate(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	fill(t, c)

	outcome, err := c.SaveDraft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.SaveRemote, outcome)
	assert.Equal(t, "已暂存", f.notify.lastToast())
	assert.Equal(t, []string{session.RouteHub}, f.notify.routes)
	assert.Equal(t, session.Editing, c.State())

	id := c.Snapshot().CurrentDraftID
	assert.Equal(t, checkin.NewDraftID(museumID, f.now), id)

	local := f.drafts.Get(context.Background(), id)
	require.NotNil(t, local)
	require.NotNil(t, local.ServerID)
	assert.Equal(t, 4, local.Rating)
	assert.True(t, local.IsDraft)

	remote := f.remoteDrafts(museumID)
	require.Len(t, remote, 1)
	assert.Equal(t, id, remote[0].DraftID)
	assert.Equal(t, *local.ServerID, remote[0].ID)

	f.now = f.now.Add(time.Minute)
	require.NoError(t, c.SetRating(5))
	outcome, err = c.SaveDraft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.SaveRemote, outcome)
	assert.Equal(t, "已更新", f.notify.lastToast())
	assert.Equal(t, id, c.Snapshot().CurrentDraftID)

	remote = f.remoteDrafts(museumID)
	require.Len(t, remote, 1)
	assert.Equal(t, 5, remote[0].Rating)
	assert.Len(t, f.drafts.ListAll(context.Background()), 1)
	assert.Equal(t, 2, f.metrics.saves[string(session.SaveRemote)])
}

func TestSaveDraft_NetworkFailureSavesLocally(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	fill(t, c)

	f.fake.FailNetwork(backendtest.OpSubmit)
	outcome, err := c.SaveDraft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.SaveLocalOnly, outcome)
	assert.Equal(t, "已本地暂存", f.notify.lastToast())
	assert.Empty(t, f.remoteDrafts(museumID))

	id := c.Snapshot().CurrentDraftID
	local := f.drafts.Get(context.Background(), id)
	require.NotNil(t, local)
	assert.Nil(t, local.ServerID)

	f.now = f.now.Add(time.Minute)
	outcome, err = c.SaveDraft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.SaveRemote, outcome)
	assert.Equal(t, "已更新", f.notify.lastToast())
	assert.Equal(t, id, c.Snapshot().CurrentDraftID)
	assert.Len(t, f.drafts.ListAll(context.Background()), 1)
	assert.Len(t, f.remoteDrafts(museumID), 1)
}

func TestSaveDraft_BothStoresFail(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	fill(t, c)

	f.fake.FailNext(backendtest.OpSubmit, http.StatusBadGateway)
	f.draftsMR.Close()

	outcome, err := c.SaveDraft(context.Background())
	require.Error(t, err)
	assert.Equal(t, session.SaveFailed, outcome)
	var se *checkin.StorageError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "暂存失败", f.notify.lastToast())
	assert.Empty(t, f.notify.routes)

	v := c.Snapshot()
	assert.Equal(t, session.Editing, v.State)
	assert.Empty(t, v.CurrentDraftID)
	assert.NotEmpty(t, v.Error)
	assert.Empty(t, c.Snapshot().Error)
}

func TestSaveDraft_RequiresRating(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	require.NoError(t, c.SelectMood("happy"))
	require.NoError(t, c.SelectWeather("sunny"))
	require.NoError(t, c.SetFeeling("不错"))

	_, err := c.SaveDraft(context.Background())
	var ve *checkin.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, checkin.FieldRating, ve.Field)
	assert.Equal(t, "请选择评分", f.notify.lastToast())
	assert.Empty(t, f.drafts.ListAll(context.Background()))
	assert.Empty(t, f.remoteDrafts(museumID))
}

func TestFreshSessionsCreateDistinctDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.open(t, session.OpenParams{MuseumID: museumID, Fresh: true})
	fill(t, first)
	_, err := first.SaveDraft(ctx)
	require.NoError(t, err)

	f.now = f.now.Add(time.Second)
	second := f.open(t, session.OpenParams{MuseumID: museumID, Fresh: true})
	assert.Empty(t, second.Snapshot().CurrentDraftID)
	fill(t, second)
	require.NoError(t, second.SetRating(2))
	_, err = second.SaveDraft(ctx)
	require.NoError(t, err)

	a, b := first.Snapshot().CurrentDraftID, second.Snapshot().CurrentDraftID
	assert.NotEqual(t, a, b)
	assert.Len(t, f.drafts.ListAll(ctx), 2)

	latest := f.drafts.FindLatestForMuseum(ctx, museumID)
	require.NotNil(t, latest)
	assert.Equal(t, b, latest.DraftID)

	restored := f.open(t, session.OpenParams{MuseumID: museumID})
	v := restored.Snapshot()
	assert.Equal(t, b, v.CurrentDraftID)
	assert.Equal(t, 2, v.Rating)
	assert.Equal(t, "已恢复暂存内容", f.notify.lastToast())
}

func TestOpen_ExplicitDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := checkin.NewDraftID(museumID, f.now.Add(-time.Hour))
	_, err := f.drafts.Put(ctx, older, &checkin.Draft{MuseumID: museumID, Rating: 3, Tags: []string{"青铜器"}})
	require.NoError(t, err)
	_, err = f.drafts.Put(ctx, checkin.NewDraftID(museumID, f.now), &checkin.Draft{MuseumID: museumID, Rating: 5})
	require.NoError(t, err)

	c := f.open(t, session.OpenParams{MuseumID: museumID, DraftID: older})
	v := c.Snapshot()
	assert.Equal(t, older, v.CurrentDraftID)
	assert.Equal(t, 3, v.Rating)
	assert.Equal(t, []string{"青铜器"}, v.Tags)
}

func TestOpen_DraftOfAnotherMuseumIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	foreign := checkin.NewDraftID(otherID, f.now)
	_, err := f.drafts.Put(ctx, foreign, &checkin.Draft{MuseumID: otherID, Rating: 1})
	require.NoError(t, err)

	c := f.open(t, session.OpenParams{MuseumID: museumID, DraftID: foreign})
	v := c.Snapshot()
	assert.Empty(t, v.CurrentDraftID)
	assert.Zero(t, v.Rating)
}

func TestSubmit_NotEligible(t *testing.T) {
	f := newFixture(t)
	f.user = north(museumPoint, 650)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	fill(t, c)
	assert.False(t, c.CanSubmit())

	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, checkin.ErrNotEligible)
	assert.Equal(t, "请靠近博物馆后再打卡", f.notify.lastToast())
	assert.Empty(t, f.fake.Records(userID))
	assert.Equal(t, session.Editing, c.State())
}

func TestSubmit_ValidatesBeforeSending(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	require.NoError(t, c.SetRating(3))
	assert.False(t, c.CanSubmit())

	_, err := c.Submit(context.Background())
	var ve *checkin.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, checkin.FieldMood, ve.Field)
	assert.Equal(t, "请选择心情", f.notify.lastToast())
	assert.Empty(t, f.fake.Records(userID))
}

func TestSubmit_DeletesEveryDraftOfMuseum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A remote-only draft saved from another device.
	f.fake.AddRecord(checkin.Record{UserID: userID, MuseumID: museumID, IsDraft: true, DraftID: "42_1600000000000"})
	// A local-only draft.
	localOnly := checkin.NewDraftID(museumID, f.now.Add(-time.Hour))
	_, err := f.drafts.Put(ctx, localOnly, &checkin.Draft{MuseumID: museumID, Rating: 2})
	require.NoError(t, err)
	// Drafts of another museum survive.
	other := checkin.NewDraftID(otherID, f.now)
	_, err = f.drafts.Put(ctx, other, &checkin.Draft{MuseumID: otherID, Rating: 2})
	require.NoError(t, err)
	f.fake.AddRecord(checkin.Record{UserID: userID, MuseumID: otherID, IsDraft: true, DraftID: other})

	c := f.open(t, session.OpenParams{MuseumID: museumID, Fresh: true})
	fill(t, c)
	_, err = c.SaveDraft(ctx)
	require.NoError(t, err)
	require.Len(t, f.remoteDrafts(museumID), 2)

	res, err := c.Submit(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)

	v := c.Snapshot()
	assert.Equal(t, session.Submitted, v.State)
	assert.Equal(t, res.ID, v.SubmittedID)
	assert.Equal(t, "打卡成功！", f.notify.lastToast())
	assert.Equal(t, fmt.Sprintf("%s?id=%d", session.RouteDetail, res.ID), f.notify.routes[len(f.notify.routes)-1])

	assert.Empty(t, f.remoteDrafts(museumID))
	assert.Len(t, f.remoteDrafts(otherID), 1)
	assert.Nil(t, f.drafts.FindLatestForMuseum(ctx, museumID))
	all := f.drafts.ListAll(ctx)
	require.Len(t, all, 1)
	assert.Contains(t, all, other)

	var final []checkin.Record
	for _, r := range f.fake.Records(userID) {
		if !r.IsDraft {
			final = append(final, r)
		}
	}
	require.Len(t, final, 1)
	assert.Equal(t, res.ID, final[0].ID)
	assert.Empty(t, final[0].DraftID)
	assert.Equal(t, "happy", final[0].Mood)
	assert.Equal(t, 1, f.metrics.submits["success"])

	assert.ErrorIs(t, c.AddTag("late"), session.ErrNotReady)
}

func TestSubmit_DeletesRemoteDraftsBeyondFirstPage(t *testing.T) {
	f := newFixture(t)
	for i := range 130 {
		f.fake.AddRecord(checkin.Record{
			UserID:   userID,
			MuseumID: museumID,
			IsDraft:  true,
			DraftID:  fmt.Sprintf("42_%d", 1600000000000+i),
		})
	}
	require.Len(t, f.remoteDrafts(museumID), 130)

	c := f.open(t, session.OpenParams{MuseumID: museumID, Fresh: true})
	fill(t, c)
	_, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.remoteDrafts(museumID))
	var listed int
	for _, call := range f.fake.Calls() {
		if strings.HasPrefix(call, "GET /api/v1/museums/miniapp/checkin/records") {
			listed++
		}
	}
	assert.Equal(t, 2, listed)
}

func TestSubmit_CleanupFailuresDoNotFailSubmit(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	fill(t, c)
	_, err := c.SaveDraft(context.Background())
	require.NoError(t, err)

	f.fake.FailNext(backendtest.OpRecords, http.StatusInternalServerError)
	f.fake.FailNext(backendtest.OpDeleteDraft, http.StatusInternalServerError)

	_, err = c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Submitted, c.State())
	assert.Empty(t, f.drafts.ListAll(context.Background()))
}

func TestSubmit_FailureKeepsEditing(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	fill(t, c)

	f.fake.FailNext(backendtest.OpSubmit, http.StatusInternalServerError)
	_, err := c.Submit(context.Background())
	require.Error(t, err)

	v := c.Snapshot()
	assert.Equal(t, session.Editing, v.State)
	assert.NotEmpty(t, v.Error)
	assert.Equal(t, "打卡失败，请重试", f.notify.lastToast())
	assert.Equal(t, 1, f.metrics.submits["failed"])

	f.fake.RejectNext(backendtest.OpSubmit, "今日已打卡")
	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, checkin.ErrRejected)

	_, err = c.Submit(context.Background())
	require.NoError(t, err)
}

func TestSubmit_EndedLoginAsksToLogIn(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	fill(t, c)

	f.fake.RevokeAccessTokens()
	f.fake.RevokeRefreshTokens()
	_, err := c.Submit(context.Background())

	var lr *auth.LoginRequiredError
	require.ErrorAs(t, err, &lr)
	assert.ErrorIs(t, err, checkin.ErrUnauthenticated)
	p, err := session.ParamsFromTarget(lr.Target)
	require.NoError(t, err)
	assert.Equal(t, int64(museumID), p.MuseumID)

	assert.Equal(t, session.Editing, c.State())
	assert.Equal(t, 1, f.notify.alertsWithTitle("提示"))
	assert.NotContains(t, f.notify.toasts, "打卡失败，请重试")
	assert.False(t, f.auth.IsLoggedIn(context.Background()))
}

func TestSaveDraft_EndedLoginKeepsDraftLocally(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})
	fill(t, c)

	f.fake.RevokeAccessTokens()
	f.fake.RevokeRefreshTokens()
	outcome, err := c.SaveDraft(context.Background())
	assert.Equal(t, session.SaveLocalOnly, outcome)

	var lr *auth.LoginRequiredError
	require.ErrorAs(t, err, &lr)
	draftID := c.Snapshot().CurrentDraftID
	require.NotEmpty(t, draftID)
	require.NotNil(t, f.drafts.Get(context.Background(), draftID))
	assert.Empty(t, f.notify.routes)

	f.login(t)
	resumed := f.controller()
	require.NoError(t, resumed.Resume(context.Background(), lr.Target))
	v := resumed.Snapshot()
	assert.Equal(t, draftID, v.CurrentDraftID)
	assert.Equal(t, "青铜器展厅很震撼", v.Feeling)
}

func TestSaveAndSubmit_RejectReentry(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	hook := &hookCheckins{Checkins: f.checkins}
	c := f.controllerWith(hook)
	require.NoError(t, c.Open(context.Background(), session.OpenParams{MuseumID: museumID}))
	fill(t, c)

	var saveErr, submitErr error
	hook.onSubmit = func() {
		hook.onSubmit = nil
		_, saveErr = c.SaveDraft(context.Background())
		_, submitErr = c.Submit(context.Background())
	}

	_, err := c.SaveDraft(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, saveErr, session.ErrBusy)
	assert.ErrorIs(t, submitErr, session.ErrBusy)
}

func TestAddPhotos_Limit(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})

	require.NoError(t, c.AddPhotos("1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg", "6.jpg"))
	err := c.AddPhotos("7.jpg", "8.jpg", "9.jpg", "10.jpg")
	assert.ErrorIs(t, err, session.ErrPhotoLimit)
	assert.Len(t, c.Snapshot().Photos, 6)

	require.NoError(t, c.AddPhotos("7.jpg", "8.jpg", "9.jpg"))
	assert.Len(t, c.Snapshot().Photos, checkin.MaxPhotos)

	err = c.AddPhotos("10.jpg")
	assert.ErrorIs(t, err, session.ErrPhotoLimit)
	assert.Equal(t, "最多添加9张照片", f.notify.lastToast())
	assert.Len(t, c.Snapshot().Photos, checkin.MaxPhotos)

	require.NoError(t, c.RemovePhoto(0))
	photos := c.Snapshot().Photos
	assert.Len(t, photos, 8)
	assert.Equal(t, "2.jpg", photos[0])
	assert.ErrorIs(t, c.RemovePhoto(8), session.ErrInvalidInput)
}

func TestCompanions(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})

	for i := 1; i <= 10; i++ {
		require.NoError(t, c.AddCompanion(fmt.Sprintf("朋友%d", i)))
	}
	assert.Len(t, c.Snapshot().Companions, 10)

	err := c.AddCompanion("  朋友3 ")
	assert.ErrorIs(t, err, session.ErrDuplicate)
	assert.Equal(t, "伙伴已存在", f.notify.lastToast())

	require.NoError(t, c.AddCompanion("   "))
	assert.Len(t, c.Snapshot().Companions, 10)

	require.NoError(t, c.RemoveCompanion(2))
	require.NoError(t, c.AddCompanion("朋友3"))
	assert.Equal(t, "朋友3", c.Snapshot().Companions[9])
}

func TestTags(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})

	require.NoError(t, c.AddTag(" 书画 "))
	assert.ErrorIs(t, c.AddTag("书画"), session.ErrDuplicate)
	assert.Equal(t, "标签已存在", f.notify.lastToast())
	assert.Equal(t, []string{"书画"}, c.Snapshot().Tags)

	require.NoError(t, c.RemoveTag(0))
	assert.Empty(t, c.Snapshot().Tags)
	assert.ErrorIs(t, c.RemoveTag(0), session.ErrInvalidInput)
}

func TestSelections(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, session.OpenParams{MuseumID: museumID})

	require.NoError(t, c.SetRating(4))
	assert.Equal(t, "评分：很好", f.notify.lastToast())
	assert.Equal(t, session.Editing, c.State())
	assert.ErrorIs(t, c.SetRating(6), session.ErrInvalidInput)
	assert.ErrorIs(t, c.SetRating(0), session.ErrInvalidInput)

	assert.ErrorIs(t, c.SelectMood("angry"), session.ErrInvalidInput)
	assert.ErrorIs(t, c.SelectWeather("foggy"), session.ErrInvalidInput)
	require.NoError(t, c.SelectMood("amazed"))
	require.NoError(t, c.SelectWeather("rainy"))

	v := c.Snapshot()
	assert.Equal(t, 4, v.Rating)
	assert.Equal(t, "很好", v.RatingText)
	assert.Equal(t, "amazed", v.Mood)
	assert.Equal(t, "rainy", v.Weather)
	assert.False(t, v.CanSubmit)

	require.NoError(t, c.SetFeeling("值得再来"))
	assert.True(t, c.Snapshot().CanSubmit)
}

func TestEditingBeforeOpen(t *testing.T) {
	f := newFixture(t)
	c := f.controller()

	assert.True(t, errors.Is(c.SetFeeling("x"), session.ErrNotReady))
	assert.ErrorIs(t, c.AddPhotos("a.jpg"), session.ErrNotReady)
	assert.ErrorIs(t, c.RefreshLocation(context.Background()), session.ErrNotReady)
	assert.Equal(t, session.Uninitialized, c.State())
}
