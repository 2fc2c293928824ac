package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

const checkinPath = "/api/v1/museums/miniapp/checkin"

const defaultPageSize = 10

// CheckinClient is the authenticated check-in API. Every call runs under
// the Authenticator and is tagged with the caller's user id.
type CheckinClient struct {
	t    *Transport
	auth Authenticator
}

// NewCheckinClient constructs a CheckinClient.
func NewCheckinClient(t *Transport, auth Authenticator) *CheckinClient {
	return &CheckinClient{t: t, auth: auth}
}

// submitRequest is the body of POST /checkin/submit.
type submitRequest struct {
	ID         *int64            `json:"id,omitempty"`
	MuseumID   int64             `json:"museumId"`
	MuseumName string            `json:"museumName"`
	UserID     int64             `json:"userId"`
	Photos     []string          `json:"photos"`
	Feeling    string            `json:"feeling"`
	Rating     int               `json:"rating"`
	Mood       string            `json:"mood"`
	Weather    string            `json:"weather"`
	Companions []string          `json:"companions"`
	Tags       []string          `json:"tags"`
	Location   *checkin.Location `json:"location,omitempty"`
	IsDraft    bool              `json:"isDraft"`
	DraftID    string            `json:"draftId,omitempty"`
}

// Submit creates or updates a check-in or a remote draft. A backend answer
// with success=false is reported as checkin.ErrRejected.
func (c *CheckinClient) Submit(ctx context.Context, d *checkin.Draft) (*checkin.SubmitResult, error) {
	var res checkin.SubmitResult
	err := c.auth.WithAuth(ctx, func(ctx context.Context, cred Credential) error {
		loc := d.Location
		body := submitRequest{
			ID:         d.ServerID,
			MuseumID:   d.MuseumID,
			MuseumName: d.MuseumName,
			UserID:     cred.UserID,
			Photos:     nonNil(d.Photos),
			Feeling:    d.Feeling,
			Rating:     d.Rating,
			Mood:       d.Mood,
			Weather:    d.Weather,
			Companions: nonNil(d.Companions),
			Tags:       nonNil(d.Tags),
			Location:   &loc,
			IsDraft:    d.IsDraft,
			DraftID:    d.DraftID,
		}
		return c.t.Do(ctx, Request{
			Op:         "checkin.submit",
			Method:     http.MethodPost,
			Path:       checkinPath + "/submit",
			Body:       body,
			Credential: &cred,
		}, &res)
	})
	if err != nil {
		return nil, fmt.Errorf("submitting check-in for museum %d: %w", d.MuseumID, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("submitting check-in for museum %d: %w: %s", d.MuseumID, checkin.ErrRejected, res.Message)
	}
	return &res, nil
}

// ListRecords returns one page of the caller's records. page and pageSize
// default to 1 and 10.
func (c *CheckinClient) ListRecords(ctx context.Context, f checkin.RecordFilter, page, pageSize int) (*checkin.Page[checkin.Record], error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	if f.MuseumID != 0 {
		q.Set("museumId", strconv.FormatInt(f.MuseumID, 10))
	}
	if f.StartDate != "" {
		q.Set("startDate", f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("endDate", f.EndDate)
	}
	if f.IsDraft != nil {
		q.Set("isDraft", strconv.FormatBool(*f.IsDraft))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		q.Set("keyword", kw)
	}
	if f.Window != "" && f.Window != checkin.WindowAll {
		q.Set("filterType", string(f.Window))
	}

	out := checkin.Page[checkin.Record]{Records: []checkin.Record{}, Current: 1, Size: pageSize}
	err := c.auth.WithAuth(ctx, func(ctx context.Context, cred Credential) error {
		return c.t.Do(ctx, Request{
			Op:         "checkin.records",
			Method:     http.MethodGet,
			Path:       checkinPath + "/records",
			Query:      q,
			Credential: &cred,
		}, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("listing check-in records: %w", err)
	}
	return &out, nil
}

// GetRecord fetches one record. Missing records report checkin.ErrNotFound.
func (c *CheckinClient) GetRecord(ctx context.Context, id int64) (*checkin.Record, error) {
	var rec *checkin.Record
	err := c.auth.WithAuth(ctx, func(ctx context.Context, cred Credential) error {
		return c.t.Do(ctx, Request{
			Op:         "checkin.get",
			Method:     http.MethodGet,
			Path:       checkinPath + "/" + strconv.FormatInt(id, 10),
			Credential: &cred,
		}, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("getting check-in %d: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("getting check-in %d: %w", id, checkin.ErrNotFound)
	}
	return rec, nil
}

// DeleteRecord deletes a finalized record.
func (c *CheckinClient) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	return c.deleteBool(ctx, "checkin.delete", checkinPath+"/"+strconv.FormatInt(id, 10))
}

// DeleteDraftRemote deletes the server-side mirror of a draft.
func (c *CheckinClient) DeleteDraftRemote(ctx context.Context, draftID string) (bool, error) {
	return c.deleteBool(ctx, "checkin.draft.delete", checkinPath+"/draft/"+url.PathEscape(draftID))
}

func (c *CheckinClient) deleteBool(ctx context.Context, op, path string) (bool, error) {
	var ok bool
	err := c.auth.WithAuth(ctx, func(ctx context.Context, cred Credential) error {
		return c.t.Do(ctx, Request{
			Op:         op,
			Method:     http.MethodDelete,
			Path:       path,
			Credential: &cred,
		}, &ok)
	})
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", op, path, err)
	}
	return ok, nil
}

// Stats returns the caller's aggregate counters.
func (c *CheckinClient) Stats(ctx context.Context) (*checkin.Stats, error) {
	var st checkin.Stats
	err := c.auth.WithAuth(ctx, func(ctx context.Context, cred Credential) error {
		return c.t.Do(ctx, Request{
			Op:         "checkin.stats",
			Method:     http.MethodGet,
			Path:       checkinPath + "/stats",
			Credential: &cred,
		}, &st)
	})
	if err != nil {
		return nil, fmt.Errorf("getting check-in stats: %w", err)
	}
	return &st, nil
}

// ConvertDraft turns a remote draft into a finalized check-in.
func (c *CheckinClient) ConvertDraft(ctx context.Context, draftID string) (*checkin.SubmitResult, error) {
	var res checkin.SubmitResult
	err := c.auth.WithAuth(ctx, func(ctx context.Context, cred Credential) error {
		return c.t.Do(ctx, Request{
			Op:         "checkin.draft.convert",
			Method:     http.MethodPost,
			Path:       checkinPath + "/draft/" + url.PathEscape(draftID) + "/convert",
			Body:       struct{}{},
			Credential: &cred,
		}, &res)
	})
	if err != nil {
		return nil, fmt.Errorf("converting draft %s: %w", draftID, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("converting draft %s: %w: %s", draftID, checkin.ErrRejected, res.Message)
	}
	return &res, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
