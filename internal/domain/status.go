package domain

import "net/http"

// StatusCategory represents the coarse classification of an HTTP-like status
// code returned by a backend collaborator.
type StatusCategory int

const (
	StatusCategoryUnknown StatusCategory = iota
	StatusCategorySuccess
	StatusCategoryClientError
	StatusCategoryServerError
)

// ClassifyStatus returns the category of a backend status code.
// A zero value status is treated as success.
func ClassifyStatus(code int) StatusCategory {
	if code == 0 {
		return StatusCategorySuccess
	}

	switch {
	case code >= 200 && code <= 299:
		return StatusCategorySuccess
	case code >= 400 && code <= 499:
		return StatusCategoryClientError
	case code >= 500 && code <= 599:
		return StatusCategoryServerError
	default:
		return StatusCategoryUnknown
	}
}

// IsRetriableStatus returns true when a request that failed with code should be
// retried by the queue. Server errors and 429 are retriable, other client errors are not.
func IsRetriableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return ClassifyStatus(code) == StatusCategoryServerError
}
