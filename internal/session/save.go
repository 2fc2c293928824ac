package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/museum-checkin/internal/auth"
	"github.com/neexbeast/museum-checkin/internal/checkin"
)

// remoteDraftPageSize is the page size used to list remote drafts.
const remoteDraftPageSize = 100

// SaveDraft persists the form as a draft: remotely first, then locally.
// A remote failure degrades to a local-only save with the same draft id.
// On success the UI is sent back to the hub. When the login has ended the
// draft is still kept locally and *auth.LoginRequiredError reopens it.
func (c *Controller) SaveDraft(ctx context.Context) (SaveOutcome, error) {
	if c.state == SavingDraft || c.state == Submitting {
		return SaveFailed, ErrBusy
	}
	if !c.state.editable() {
		return SaveFailed, fmt.Errorf("saving draft in state %s: %w", c.state, ErrNotReady)
	}
	if err := checkin.Validate(&c.form); err != nil {
		c.toastValidation(err)
		return SaveFailed, err
	}

	c.state = SavingDraft
	existed := c.currentDraftID != ""
	id := c.currentDraftID
	if id == "" {
		id = checkin.NewDraftID(c.params.MuseumID, c.now())
	}
	d := c.payload(true)
	d.DraftID = id
	d.ServerID = c.serverID

	outcome := SaveRemote
	res, err := c.checkins.Submit(ctx, d)
	if err != nil {
		outcome = SaveLocalOnly
		c.log.Warn("remote draft save failed, saving locally", "draft_id", id, "err", err)
	} else {
		serverID := res.ID
		d.ServerID = &serverID
	}

	if _, perr := c.drafts.Put(ctx, id, d); perr != nil {
		if outcome == SaveLocalOnly {
			c.state = Editing
			c.lastErr = perr
			c.metrics.DraftSaved(string(SaveFailed))
			c.notify.Toast("暂存失败")
			return SaveFailed, fmt.Errorf("saving draft %s: %w", id, errors.Join(err, perr))
		}
		c.log.Error("local draft save failed after remote save", "draft_id", id, "err", perr)
	}

	c.currentDraftID = id
	c.serverID = d.ServerID
	c.state = Editing
	c.metrics.DraftSaved(string(outcome))

	if lr := c.loginRequired(err); lr != nil {
		c.lastErr = lr
		c.notify.Alert("提示", "请先登录后再使用此功能")
		return outcome, lr
	}

	switch {
	case existed:
		c.notify.Toast("已更新")
	case outcome == SaveRemote:
		c.notify.Toast("已暂存")
	default:
		c.notify.Toast("已本地暂存")
	}
	c.notify.Navigate(RouteHub)
	return outcome, nil
}

// Submit finalizes the check-in. It requires eligibility and every
// required field. On success every local and remote draft of the museum
// is deleted and the UI is sent to the new record. An ended login returns
// *auth.LoginRequiredError for this session.
func (c *Controller) Submit(ctx context.Context) (*checkin.SubmitResult, error) {
	if c.state == SavingDraft || c.state == Submitting {
		return nil, ErrBusy
	}
	if !c.state.editable() {
		return nil, fmt.Errorf("submitting in state %s: %w", c.state, ErrNotReady)
	}
	if !c.elig.CanCheckin {
		c.notify.Toast("请靠近博物馆后再打卡")
		return nil, checkin.ErrNotEligible
	}
	if err := checkin.Validate(&c.form); err != nil {
		c.toastValidation(err)
		return nil, err
	}

	c.state = Submitting
	res, err := c.checkins.Submit(ctx, c.payload(false))
	if err != nil {
		c.state = Editing
		c.lastErr = err
		c.metrics.CheckinSubmitted("failed")
		c.log.Warn("submitting check-in", "museum_id", c.params.MuseumID, "err", err)
		if lr := c.loginRequired(err); lr != nil {
			c.lastErr = lr
			c.notify.Alert("提示", "请先登录后再使用此功能")
			return nil, lr
		}
		c.notify.Toast("打卡失败，请重试")
		return nil, fmt.Errorf("submitting check-in: %w", err)
	}

	c.cleanupDrafts(ctx)

	c.state = Submitted
	c.submittedID = res.ID
	c.metrics.CheckinSubmitted("success")
	c.notify.Toast("打卡成功！")
	c.notify.Navigate(RouteDetail + "?id=" + strconv.FormatInt(res.ID, 10))
	return res, nil
}

// loginRequired returns a login-gate error that reopens this session when
// err means the session has ended, or nil.
func (c *Controller) loginRequired(err error) *auth.LoginRequiredError {
	if err == nil || !errors.Is(err, checkin.ErrUnauthenticated) {
		return nil
	}
	p := c.params
	if c.currentDraftID != "" {
		p.DraftID = c.currentDraftID
		p.Fresh = false
	}
	return &auth.LoginRequiredError{Target: p.Target(), Err: err}
}

// cleanupDrafts deletes every local and remote draft of the museum. It is
// best-effort: failures are logged.
func (c *Controller) cleanupDrafts(ctx context.Context) {
	museumID := c.params.MuseumID
	ids := make(map[string]bool)
	if c.currentDraftID != "" {
		ids[c.currentDraftID] = true
	}

	local, err := c.drafts.DeleteForMuseum(ctx, museumID)
	if err != nil {
		c.log.Warn("deleting local drafts", "museum_id", museumID, "err", err)
	}
	for _, id := range local {
		ids[id] = true
	}

	for _, id := range c.remoteDraftIDs(ctx, museumID) {
		ids[id] = true
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var g errgroup.Group
	g.SetLimit(4)
	for _, id := range sorted {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("remote draft delete panicked", "draft_id", id, "recover", r)
				}
			}()
			if _, derr := c.checkins.DeleteDraftRemote(ctx, id); derr != nil {
				c.log.Warn("deleting remote draft", "draft_id", id, "err", derr)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// remoteDraftIDs lists the ids of every remote draft of museumID, page by
// page until the reported total is covered. A failed page ends the listing
// with what was collected so far.
func (c *Controller) remoteDraftIDs(ctx context.Context, museumID int64) []string {
	isDraft := true
	filter := checkin.RecordFilter{MuseumID: museumID, IsDraft: &isDraft}

	var ids []string
	for page, seen := 1, 0; ; page++ {
		res, err := c.checkins.ListRecords(ctx, filter, page, remoteDraftPageSize)
		if err != nil {
			c.log.Warn("listing remote drafts", "museum_id", museumID, "page", page, "err", err)
			return ids
		}
		for _, r := range res.Records {
			if r.IsDraft && r.MuseumID == museumID && r.DraftID != "" {
				ids = append(ids, r.DraftID)
			}
		}
		seen += len(res.Records)
		if len(res.Records) == 0 || seen >= res.Total {
			return ids
		}
	}
}

func (c *Controller) payload(isDraft bool) *checkin.Draft {
	d := checkin.Draft{
		MuseumID:   c.params.MuseumID,
		Photos:     append([]string{}, c.form.Photos...),
		Feeling:    c.form.Feeling,
		Rating:     c.form.Rating,
		Mood:       c.form.Mood,
		Weather:    c.form.Weather,
		Companions: append([]string{}, c.form.Companions...),
		Tags:       append([]string{}, c.form.Tags...),
		IsDraft:    isDraft,
	}
	if c.museum != nil {
		d.MuseumName = c.museum.Name
		d.Location.Address = c.museum.Address
	}
	if c.user != nil {
		d.Location.Latitude = c.user.Latitude
		d.Location.Longitude = c.user.Longitude
	}
	checkin.Normalize(&d)
	return &d
}

func (c *Controller) toastValidation(err error) {
	var ve *checkin.ValidationError
	if errors.As(err, &ve) {
		c.notify.Toast(ve.Prompt())
	}
}
