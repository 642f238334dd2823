package model

import (
	"errors"
	"fmt"
)

// ValidationError signals structurally wrong caller input (bad cursor,
// out-of-range limit, malformed target).
type ValidationError struct {
	Msg  string
	Hint string
}

func (e *ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (%s)", e.Msg, e.Hint)
	}
	return e.Msg
}

// AuthError signals missing, invalid, or unrefreshable credentials. It
// always propagates; no caller recovers from it locally.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// ContextError signals that a target could not be determined: no identifier
// found, only one of org/project supplied, or no projects in an org.
type ContextError struct {
	Msg string
}

func (e *ContextError) Error() string { return e.Msg }

// ResolutionError signals a named entity (org, project, short id) that was
// not found.
type ResolutionError struct {
	Kind string // "org", "project", "issue"
	Name string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ApiError signals an unsuccessful response from the service.
type ApiError struct {
	Status   int
	Detail   string
	Endpoint string
}

func (e *ApiError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error %d on %s: %s", e.Status, e.Endpoint, e.Detail)
	}
	return fmt.Sprintf("API error %d on %s", e.Status, e.Endpoint)
}

// NetworkError signals a transport failure before any response status was
// available.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// CompositeFetchError is returned by the fetch coordinator when every
// target failed. It preserves the first ApiError's status code for
// telemetry (invariant: "all-fail" scenario, §4.5).
type CompositeFetchError struct {
	TargetCount int
	FirstStatus int // 0 if no ApiError was among the failures
	Causes      []error
}

func (e *CompositeFetchError) Error() string {
	return fmt.Sprintf("Failed to fetch issues from %d project(s): %v", e.TargetCount, e.Causes[0])
}

func (e *CompositeFetchError) Unwrap() []error { return e.Causes }

// NewCompositeFetchError builds a CompositeFetchError from the per-target
// failures, carrying forward the status of the first ApiError among them
// (0 if none of the causes were ApiErrors).
func NewCompositeFetchError(causes []error) *CompositeFetchError {
	e := &CompositeFetchError{TargetCount: len(causes), Causes: causes}
	for _, c := range causes {
		var apiErr *ApiError
		if errors.As(c, &apiErr) {
			e.FirstStatus = apiErr.Status
			break
		}
	}
	return e
}
