package backendtest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

type submitResult struct {
	ID          int64  `json:"id"`
	CheckinTime string `json:"checkinTime"`
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
}

type submitBody struct {
	checkin.Record
	UserID int64 `json:"userId"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpSubmit) {
		return
	}
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "invalid body")
		return
	}
	uid := userID(r)
	if body.UserID != uid {
		fail(w, http.StatusBadRequest, "userId mismatch")
		return
	}
	if msg, rejected := s.rejected(OpSubmit); rejected {
		ok(w, submitResult{Success: false, Message: msg})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := body.Record
	rec.UserID = uid
	rec.CheckinTime = s.now().Format(time.RFC3339)

	if existing := s.findDraft(uid, rec.DraftID); rec.IsDraft && existing != nil {
		rec.ID = existing.ID
	} else if rec.ID != 0 {
		if prev, found := s.records[rec.ID]; !found || prev.UserID != uid || !rec.IsDraft {
			rec.ID = 0
		}
	}
	if !rec.IsDraft {
		rec.DraftID = ""
	}
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	s.records[rec.ID] = &rec

	ok(w, submitResult{ID: rec.ID, CheckinTime: rec.CheckinTime, Success: true})
}

// findDraft returns the draft record of uid with draftID. Callers hold s.mu.
func (s *Server) findDraft(uid int64, draftID string) *checkin.Record {
	if draftID == "" {
		return nil
	}
	for _, r := range s.records {
		if r.UserID == uid && r.IsDraft && r.DraftID == draftID {
			return r
		}
	}
	return nil
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpRecords) {
		return
	}
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	size := atoiDefault(q.Get("pageSize"), 10)
	museumID, _ := strconv.ParseInt(q.Get("museumId"), 10, 64)
	keyword := q.Get("keyword")
	uid := userID(r)

	var isDraft *bool
	if v := q.Get("isDraft"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid isDraft")
			return
		}
		isDraft = &b
	}

	s.mu.Lock()
	now := s.now()
	var matched []checkin.Record
	for _, rec := range s.records {
		switch {
		case rec.UserID != uid:
		case museumID != 0 && rec.MuseumID != museumID:
		case isDraft != nil && rec.IsDraft != *isDraft:
		case keyword != "" && !strings.Contains(rec.MuseumName, keyword):
		case !inWindow(rec.CheckinTime, q.Get("filterType"), now):
		default:
			matched = append(matched, *rec)
		}
	}
	s.mu.Unlock()
	sortRecords(matched)

	out := checkin.Page[checkin.Record]{Records: []checkin.Record{}, Total: len(matched), Current: page, Size: size}
	if start := (page - 1) * size; start < len(matched) {
		out.Records = matched[start:min(start+size, len(matched))]
	}
	ok(w, out)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpGetRecord) {
		return
	}
	rec, found := s.ownRecord(r)
	if !found {
		fail(w, http.StatusNotFound, "打卡记录不存在")
		return
	}
	ok(w, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpDeleteRecord) {
		return
	}
	rec, found := s.ownRecord(r)
	if !found {
		fail(w, http.StatusNotFound, "打卡记录不存在")
		return
	}
	s.mu.Lock()
	delete(s.records, rec.ID)
	s.mu.Unlock()
	ok(w, true)
}

func (s *Server) ownRecord(r *http.Request) (checkin.Record, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return checkin.Record{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.records[id]
	if !found || rec.UserID != userID(r) {
		return checkin.Record{}, false
	}
	return *rec, true
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpDeleteDraft) {
		return
	}
	draftID := chi.URLParam(r, "draftId")

	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDraft(userID(r), draftID)
	if d == nil {
		ok(w, false)
		return
	}
	delete(s.records, d.ID)
	ok(w, true)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpConvertDraft) {
		return
	}
	draftID := chi.URLParam(r, "draftId")

	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDraft(userID(r), draftID)
	if d == nil {
		ok(w, submitResult{Success: false, Message: "暂存记录不存在"})
		return
	}
	d.IsDraft = false
	d.DraftID = ""
	d.CheckinTime = s.now().Format(time.RFC3339)
	ok(w, submitResult{ID: d.ID, CheckinTime: d.CheckinTime, Success: true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpStats) {
		return
	}
	uid := userID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var st checkin.Stats
	visited := make(map[int64]bool)
	for _, rec := range s.records {
		if rec.UserID != uid || rec.IsDraft {
			continue
		}
		st.TotalCheckins++
		st.TotalPhotos += len(rec.Photos)
		visited[rec.MuseumID] = true
		if inWindow(rec.CheckinTime, string(checkin.WindowThisMonth), now) {
			st.ThisMonthCheckins++
		}
	}
	st.VisitedMuseums = len(visited)
	ok(w, st)
}

func inWindow(checkinTime, window string, now time.Time) bool {
	if window == "" || window == string(checkin.WindowAll) {
		return true
	}
	t, err := time.Parse(time.RFC3339, checkinTime)
	if err != nil {
		return false
	}
	switch checkin.TimeWindow(window) {
	case checkin.WindowThisMonth:
		return t.Year() == now.Year() && t.Month() == now.Month()
	case checkin.WindowThisYear:
		return t.Year() == now.Year()
	}
	return true
}

// sortRecords orders records newest first.
func sortRecords(recs []checkin.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID > recs[j].ID })
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
