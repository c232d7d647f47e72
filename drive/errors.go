package drive

import (
	"errors"
	"fmt"
)

// CredentialError means the service-account file is missing, unreadable or
// incomplete. It is raised before any network call.
type CredentialError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	msg := fmt.Sprintf("credentials %q: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

func (e *CredentialError) Is(target error) bool {
	var t *CredentialError
	return errors.As(target, &t)
}

// AuthError means the token endpoint rejected the assertion or could not be reached.
// StatusCode is 0 when no HTTP response was received.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool {
	var t *AuthError
	return errors.As(target, &t)
}

// ListingError means the Drive listing query was rejected.
type ListingError struct {
	FolderID   string
	StatusCode int
	Err        error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("list folder %q (status %d): %v", e.FolderID, e.StatusCode, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

func (e *ListingError) Is(target error) bool {
	var t *ListingError
	return errors.As(target, &t)
}

// DownloadError means the Drive download (or Sheets export) was rejected.
type DownloadError struct {
	FileID     string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download file %q (status %d): %v", e.FileID, e.StatusCode, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

func (e *DownloadError) Is(target error) bool {
	var t *DownloadError
	return errors.As(target, &t)
}

// Retryable reports whether err is a transport failure or a 429/5xx answer.
// Credential problems and 4xx answers are never retryable.
func Retryable(err error) bool {
	var cred *CredentialError
	if errors.As(err, &cred) {
		return false
	}

	status := 0
	var (
		auth *AuthError
		list *ListingError
		dl   *DownloadError
	)
	switch {
	case errors.As(err, &auth):
		status = auth.StatusCode
	case errors.As(err, &list):
		status = list.StatusCode
	case errors.As(err, &dl):
		status = dl.StatusCode
	}
	return status == 0 || status == 429 || status >= 500
}
