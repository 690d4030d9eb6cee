package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryUnavailable means the directory page had no usable identifier array.
	// Callers should treat it as "try again later", not as "no groups exist".
	ErrDirectoryUnavailable = errors.New("group directory unavailable")

	// ErrNoGroup is returned for a subscriber that has not picked a group yet.
	ErrNoGroup = errors.New("no group selected")
)

// TransportError covers connection failures, timeouts and non-2xx responses.
type TransportError struct {
	Op     string // "fetch" | "directory"
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DirectoryParseError reports that no candidate array in the directory page was accepted.
type DirectoryParseError struct {
	Candidates int
}

func (e *DirectoryParseError) Error() string {
	return fmt.Sprintf("no identifier array among %d candidates", e.Candidates)
}

func (e *DirectoryParseError) Unwrap() error { return ErrDirectoryUnavailable }

// ExtractionError is a single malformed lesson unit; siblings are unaffected.
type ExtractionError struct {
	Index int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("lesson #%d: %v", e.Index, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NormalizationError is a lesson whose date label could not be parsed.
type NormalizationError struct {
	Raw string
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("date label %q: %v", e.Raw, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// DuplicateLessonError notes a lesson number seen more than once in one day.
// Both records are kept.
type DuplicateLessonError struct {
	Date   Date
	Number int
	Count  int
}

func (e *DuplicateLessonError) Error() string {
	return fmt.Sprintf("%s: lesson %d listed %d times", e.Date, e.Number, e.Count)
}

// CacheCorruptionError is a stored payload that no longer decodes.
type CacheCorruptionError struct {
	Group string
	Date  string
	Err   error
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("cache entry %s/%s: %v", e.Group, e.Date, e.Err)
}

func (e *CacheCorruptionError) Unwrap() error { return e.Err }

// DeliveryError is a failure to notify one subscriber.
type DeliveryError struct {
	UserID int64
	Group  string
	Stage  string // "resolve" | "fetch" | "render" | "deliver"
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("user %d (%s) %s: %v", e.UserID, e.Group, e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
