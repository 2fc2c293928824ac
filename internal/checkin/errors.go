package checkin

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMuseumNotFound is returned when the museum of a session cannot be loaded.
	ErrMuseumNotFound = errors.New("museum not found")
	// ErrNotEligible is returned when a final submission is attempted out of range.
	ErrNotEligible = errors.New("not eligible: too far from museum")
	// ErrUnauthenticated is returned when no valid session can be established.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound is returned when a record or draft does not exist for the caller.
	ErrNotFound = errors.New("not found")
	// ErrRejected is returned when the backend answers a submit with success=false.
	ErrRejected = errors.New("rejected by backend")
)

// Field names a required check-in form field.
type Field string

const (
	FieldRating  Field = "rating"
	FieldMood    Field = "mood"
	FieldWeather Field = "weather"
	FieldFeeling Field = "feeling"
)

// ValidationError reports the first unmet required field.
type ValidationError struct {
	Field Field
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s is required", e.Field)
}

// Prompt is the user-facing message for the missing field.
func (e *ValidationError) Prompt() string {
	switch e.Field {
	case FieldRating:
		return "请选择评分"
	case FieldMood:
		return "请选择心情"
	case FieldWeather:
		return "请选择天气"
	case FieldFeeling:
		return "请填写打卡感受"
	}
	return "请完善打卡信息"
}

// NetworkError wraps a transport-level failure (DNS, refused, timeout).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-success answer from the backend, either an HTTP
// status or an envelope code.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("server error: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is makes a 404 ServerError match ErrNotFound.
func (e *ServerError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// StorageError wraps a device-local persistence failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a 401-class backend answer.
func IsUnauthorized(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}
