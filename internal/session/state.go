package session

import "errors"

// State is the lifecycle state of a Controller.
type State int

const (
	Uninitialized State = iota
	LocatingUser
	LoadingMuseum
	Ready
	Editing
	SavingDraft
	Submitting
	Submitted
	// MuseumLoadFailed is terminal for the session.
	MuseumLoadFailed
)

var stateNames = [...]string{
	Uninitialized:    "uninitialized",
	LocatingUser:     "locating_user",
	LoadingMuseum:    "loading_museum",
	Ready:            "ready",
	Editing:          "editing",
	SavingDraft:      "saving_draft",
	Submitting:       "submitting",
	Submitted:        "submitted",
	MuseumLoadFailed: "museum_load_failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) editable() bool {
	return s == Ready || s == Editing
}

var (
	// ErrBusy is returned when a save or submit is already in flight.
	ErrBusy = errors.New("save or submit already in progress")
	// ErrNotReady is returned for operations outside Ready and Editing.
	ErrNotReady = errors.New("session is not open for editing")
	// ErrPhotoLimit is returned when a photo batch would exceed the cap.
	ErrPhotoLimit = errors.New("photo limit reached")
	// ErrDuplicate is returned when a companion or tag is already present.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidInput is returned for values outside their allowed set.
	ErrInvalidInput = errors.New("invalid input")
)

// SaveOutcome tells how a draft save was persisted.
type SaveOutcome string

const (
	SaveRemote    SaveOutcome = "remote"
	SaveLocalOnly SaveOutcome = "local_only"
	SaveFailed    SaveOutcome = "failed"
)

// View is a read-only snapshot of the session for rendering.
type View struct {
	State          State
	MuseumID       int64
	MuseumName     string
	Address        string
	Distance       string
	DistanceMeters float64
	DistanceKnown  bool
	CanCheckin     bool
	LocationFailed bool

	Photos     []string
	Feeling    string
	Rating     int
	RatingText string
	Mood       string
	Weather    string
	Companions []string
	Tags       []string

	CurrentDraftID string
	CanSubmit      bool
	SubmittedID    int64
	// Error is the last save or submit failure. It is reported by one
	// snapshot and then cleared.
	Error string
}
