package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/neexbeast/museum-checkin/internal/auth"
	"github.com/neexbeast/museum-checkin/internal/checkin"
	"github.com/neexbeast/museum-checkin/internal/drafts"
	"github.com/neexbeast/museum-checkin/internal/geo"
	"github.com/neexbeast/museum-checkin/internal/hub"
	"github.com/neexbeast/museum-checkin/internal/session"
)

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

// positionFlags registers --lat/--lon. The returned provider fails when
// either is missing, which the session treats as an unknown location.
func positionFlags(fs *pflag.FlagSet) func() geo.Provider {
	lat := fs.Float64("lat", 0, "device latitude")
	lon := fs.Float64("lon", 0, "device longitude")
	return func() geo.Provider {
		if !fs.Changed("lat") || !fs.Changed("lon") {
			return geo.Static{Err: geo.ErrLocationUnavailable}
		}
		return geo.Static{Point: geo.Point{Latitude: *lat, Longitude: *lon}}
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlags("login")
	username := fs.String("username", "", "account name")
	password := fs.String("password", "", "account password")
	code := fs.String("code", "", "WeChat login code")
	redirect := fs.String("redirect", "", "login URL carrying a redirect target")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		resp *auth.LoginResponse
		err  error
	)
	switch {
	case *code != "":
		resp, err = a.auth.LoginWithCode(ctx, *code)
	case *username != "":
		resp, err = a.auth.Login(ctx, auth.Credentials{Username: *username, Password: *password})
	default:
		return errors.New("login needs --username/--password or --code")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", resp.UserInfo.Username)

	if *redirect == "" {
		return nil
	}
	target, ok, err := auth.RedirectTarget(*redirect)
	if err != nil || !ok {
		return err
	}
	c := a.controller(geo.Static{Err: geo.ErrLocationUnavailable})
	if err := c.Resume(ctx, target); err != nil {
		return err
	}
	return a.printJSON(c.Snapshot())
}

func (a *app) logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *app) controller(location geo.Provider) *session.Controller {
	return session.New(session.Deps{
		Auth:     a.auth,
		Location: location,
		Museums:  a.catalog,
		Checkins: a.checkins,
		Drafts:   a.drafts,
		Notifier: printNotifier{out: a.out},
		Logger:   a.log,
		Metrics:  a.metrics,
	}, session.WithThreshold(a.cfg.CheckinRadiusMeters))
}

// form holds the session and edit flags shared by open, save and submit.
type form struct {
	fs         *pflag.FlagSet
	position   func() geo.Provider
	museumID   *int64
	draftID    *string
	fresh      *bool
	rating     *int
	mood       *string
	weather    *string
	feeling    *string
	photos     *[]string
	companions *[]string
	tags       *[]string
}

func newForm(name string) *form {
	fs := newFlags(name)
	return &form{
		fs:         fs,
		position:   positionFlags(fs),
		museumID:   fs.Int64("museum", 0, "museum id"),
		draftID:    fs.String("draft", "", "draft id to continue"),
		fresh:      fs.Bool("fresh", false, "start without restoring the latest draft"),
		rating:     fs.Int("rating", 0, "rating 1-5"),
		mood:       fs.String("mood", "", "mood value"),
		weather:    fs.String("weather", "", "weather value"),
		feeling:    fs.String("feeling", "", "feeling text"),
		photos:     fs.StringArray("photo", nil, "photo path, repeatable"),
		companions: fs.StringArray("companion", nil, "companion name, repeatable"),
		tags:       fs.StringArray("tag", nil, "tag, repeatable"),
	}
}

// loginHint prints how to resume when err asks for a login.
func (a *app) loginHint(err error) error {
	var lr *auth.LoginRequiredError
	if errors.As(err, &lr) {
		fmt.Fprintf(a.out, "login required, continue with: checkin login --redirect '%s'\n", lr.Target.LoginURL())
	}
	return err
}

// openSession opens the session described by the flags and applies every edit given.
func (a *app) openSession(ctx context.Context, f *form, args []string) (*session.Controller, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}
	c := a.controller(f.position())
	if err := c.Open(ctx, session.OpenParams{MuseumID: *f.museumID, DraftID: *f.draftID, Fresh: *f.fresh}); err != nil {
		return nil, a.loginHint(err)
	}

	if len(*f.photos) > 0 {
		if err := c.AddPhotos(*f.photos...); err != nil {
			return nil, err
		}
	}
	if f.fs.Changed("rating") {
		if err := c.SetRating(*f.rating); err != nil {
			return nil, err
		}
	}
	if f.fs.Changed("mood") {
		if err := c.SelectMood(*f.mood); err != nil {
			return nil, err
		}
	}
	if f.fs.Changed("weather") {
		if err := c.SelectWeather(*f.weather); err != nil {
			return nil, err
		}
	}
	if f.fs.Changed("feeling") {
		if err := c.SetFeeling(*f.feeling); err != nil {
			return nil, err
		}
	}
	for _, name := range *f.companions {
		if err := c.AddCompanion(name); err != nil && !errors.Is(err, session.ErrDuplicate) {
			return nil, err
		}
	}
	for _, tag := range *f.tags {
		if err := c.AddTag(tag); err != nil && !errors.Is(err, session.ErrDuplicate) {
			return nil, err
		}
	}
	return c, nil
}

func (a *app) open(ctx context.Context, args []string) error {
	c, err := a.openSession(ctx, newForm("open"), args)
	if err != nil {
		return err
	}
	return a.printJSON(c.Snapshot())
}

func (a *app) save(ctx context.Context, args []string) error {
	c, err := a.openSession(ctx, newForm("save"), args)
	if err != nil {
		return err
	}
	outcome, err := c.SaveDraft(ctx)
	if err != nil {
		return a.loginHint(err)
	}
	a.log.Info("draft saved", "outcome", outcome, "draft_id", c.Snapshot().CurrentDraftID)
	return a.printJSON(c.Snapshot())
}

func (a *app) submit(ctx context.Context, args []string) error {
	c, err := a.openSession(ctx, newForm("submit"), args)
	if err != nil {
		return err
	}
	res, err := c.Submit(ctx)
	if err != nil {
		return a.loginHint(err)
	}
	return a.printJSON(res)
}

func (a *app) listDrafts(ctx context.Context) error {
	return a.printJSON(a.drafts.Summaries(ctx))
}

func (a *app) discard(ctx context.Context, args []string) error {
	fs := newFlags("discard")
	id := fs.String("id", "", "draft id")
	local := fs.Bool("local", false, "skip the remote delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("discard needs --id")
	}
	var remote drafts.RemoteDeleter
	if !*local && a.auth.IsLoggedIn(ctx) {
		remote = a.checkins
	}
	if err := a.drafts.Discard(ctx, remote, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "discarded %s\n", *id)
	return nil
}

func (a *app) records(ctx context.Context, args []string) error {
	fs := newFlags("records")
	museumID := fs.Int64("museum", 0, "only this museum")
	draftsOnly := fs.Bool("drafts", false, "only remote drafts")
	finalOnly := fs.Bool("final", false, "only final check-ins")
	keyword := fs.String("keyword", "", "museum name keyword")
	window := fs.String("window", string(checkin.WindowAll), "all, thisMonth or thisYear")
	startDate := fs.String("from", "", "start date YYYY-MM-DD")
	endDate := fs.String("to", "", "end date YYYY-MM-DD")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 10, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := checkin.RecordFilter{
		MuseumID:  *museumID,
		Keyword:   *keyword,
		Window:    checkin.TimeWindow(*window),
		StartDate: *startDate,
		EndDate:   *endDate,
	}
	switch {
	case *draftsOnly && *finalOnly:
		return errors.New("--drafts and --final are exclusive")
	case *draftsOnly:
		f.IsDraft = draftsOnly
	case *finalOnly:
		isDraft := false
		f.IsDraft = &isDraft
	}

	res, err := a.checkins.ListRecords(ctx, f, *page, *size)
	if err != nil {
		return err
	}
	return a.printJSON(res)
}

func (a *app) stats(ctx context.Context) error {
	s, err := a.checkins.Stats(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(s)
}

func (a *app) loader(location geo.Provider) *hub.Loader {
	return hub.NewLoader(a.auth, location, a.checkins, a.museums, a.drafts, a.kv, a.log).
		WithThreshold(a.cfg.CheckinRadiusMeters)
}

func (a *app) nearby(ctx context.Context, args []string) error {
	fs := newFlags("nearby")
	position := positionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ov, err := a.loader(position()).Load(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(ov)
}

func (a *app) radius(ctx context.Context, args []string) error {
	fs := newFlags("radius")
	km := fs.Int("km", 0, fmt.Sprintf("new radius, one of %v", hub.RadiusOptions))
	if err := fs.Parse(args); err != nil {
		return err
	}
	l := a.loader(geo.Static{Err: geo.ErrLocationUnavailable})
	if fs.Changed("km") {
		if err := l.SetPreferredRadius(ctx, *km); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.out, "%dkm\n", l.PreferredRadius(ctx))
	return nil
}
