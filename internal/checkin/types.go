package checkin

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxPhotos is the hard cap on photos attached to one check-in.
const MaxPhotos = 9

// Location is the position captured when a draft is saved or submitted.
// All fields are zero when the device location was unavailable.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Address   string  `json:"address,omitempty"`
}

// Draft is a check-in attempt, either still in progress (IsDraft) or
// the payload of a final submission.
type Draft struct {
	Version    int       `json:"version"`
	DraftID    string    `json:"draftId,omitempty"`
	MuseumID   int64     `json:"museumId"`
	MuseumName string    `json:"museumName"`
	UserID     int64     `json:"userId,omitempty"`
	Photos     []string  `json:"photos"`
	Feeling    string    `json:"feeling"`
	Rating     int       `json:"rating"`
	Mood       string    `json:"mood"`
	Weather    string    `json:"weather"`
	Companions []string  `json:"companions"`
	Tags       []string  `json:"tags"`
	Location   Location  `json:"location"`
	IsDraft    bool      `json:"isDraft"`
	SaveTime   time.Time `json:"saveTime,omitzero"`
	ServerID   *int64    `json:"id,omitempty"`
}

// NewDraftID builds the id of a draft created for museumID at t.
func NewDraftID(museumID int64, t time.Time) string {
	return fmt.Sprintf("%d_%d", museumID, t.UnixMilli())
}

// DraftTimestamp extracts the creation timestamp embedded in a draft id.
// Ids without a numeric suffix report 0.
func DraftTimestamp(draftID string) int64 {
	i := strings.LastIndexByte(draftID, '_')
	if i < 0 || i == len(draftID)-1 {
		return 0
	}
	ts, err := strconv.ParseInt(draftID[i+1:], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// Record is a check-in as stored by the backend.
type Record struct {
	ID          int64     `json:"id"`
	MuseumID    int64     `json:"museumId"`
	MuseumName  string    `json:"museumName"`
	UserID      int64     `json:"userId,omitempty"`
	Photos      []string  `json:"photos"`
	Feeling     string    `json:"feeling,omitempty"`
	Rating      int       `json:"rating,omitempty"`
	Mood        string    `json:"mood,omitempty"`
	Weather     string    `json:"weather,omitempty"`
	Companions  []string  `json:"companions,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Location    *Location `json:"location,omitempty"`
	CheckinTime string    `json:"checkinTime,omitempty"`
	IsDraft     bool      `json:"isDraft"`
	DraftID     string    `json:"draftId,omitempty"`
}

// SubmitResult is the backend acknowledgement of a submit call.
type SubmitResult struct {
	ID          int64  `json:"id"`
	CheckinTime string `json:"checkinTime"`
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
}

// Stats holds the aggregate counters of the current user.
type Stats struct {
	TotalCheckins     int `json:"totalCheckins"`
	ThisMonthCheckins int `json:"thisMonthCheckins"`
	VisitedMuseums    int `json:"visitedMuseums"`
	TotalPhotos       int `json:"totalPhotos"`
}

// TimeWindow is the relative time filter accepted by the records endpoint.
type TimeWindow string

const (
	WindowAll       TimeWindow = "all"
	WindowThisMonth TimeWindow = "thisMonth"
	WindowThisYear  TimeWindow = "thisYear"
)

// RecordFilter narrows a records listing. Zero values mean "no filter".
type RecordFilter struct {
	MuseumID  int64
	StartDate string
	EndDate   string
	IsDraft   *bool
	Keyword   string
	Window    TimeWindow
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
	Current int `json:"current"`
	Size    int `json:"size"`
}

// Museum is the subset of museum metadata used by the check-in flow.
type Museum struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Longitude *float64 `json:"longitude,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	CityName  string   `json:"cityName,omitempty"`
	Province  string   `json:"provinceName,omitempty"`
}

// HasCoordinates reports whether both museum coordinates are known and non-zero.
func (m *Museum) HasCoordinates() bool {
	return m.Latitude != nil && m.Longitude != nil && (*m.Latitude != 0 || *m.Longitude != 0)
}

// PlaceInfo describes the resolved position returned by the nearby endpoint.
type PlaceInfo struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	CityName         string  `json:"cityName,omitempty"`
	CityCode         string  `json:"cityCode,omitempty"`
	FormattedAddress string  `json:"formattedAddress,omitempty"`
	Province         string  `json:"province,omitempty"`
	District         string  `json:"district,omitempty"`
}

// NearbyResult is the response of the nearby-museums endpoint.
type NearbyResult struct {
	Location PlaceInfo    `json:"location"`
	Museums  Page[Museum] `json:"museums"`
}
