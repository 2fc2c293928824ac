package checkin

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the version written by this client.
// Version 1 (and unversioned records) may carry selectedMood/selectedWeather.
const SchemaVersion = 2

// storedDraft is the on-disk shape of a draft across all known versions.
type storedDraft struct {
	Draft
	SelectedMood    string `json:"selectedMood,omitempty"`
	SelectedWeather string `json:"selectedWeather,omitempty"`
	RawSaveTime     string `json:"saveTime,omitempty"`
}

// DecodeDraft parses a persisted draft and migrates it to SchemaVersion.
// key is the storage key the draft was found under, used when the payload
// lacks its own draftId.
func DecodeDraft(raw []byte, key string) (*Draft, error) {
	var s storedDraft
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding draft %s: %w", key, err)
	}

	d := s.Draft
	if d.Mood == "" {
		d.Mood = s.SelectedMood
	}
	if d.Weather == "" {
		d.Weather = s.SelectedWeather
	}
	if d.DraftID == "" {
		d.DraftID = key
	}
	if s.RawSaveTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, s.RawSaveTime); err == nil {
			d.SaveTime = t
		}
	}
	Normalize(&d)
	return &d, nil
}

// Normalize fills nil collections and stamps the current schema version.
func Normalize(d *Draft) {
	if d.Photos == nil {
		d.Photos = []string{}
	}
	if d.Companions == nil {
		d.Companions = []string{}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	d.Version = SchemaVersion
}
