package backend

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Profile is the user's personalization record.
type Profile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	AboutMe     string    `json:"aboutMe"`
	Preferences string    `json:"preferences"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProfileUpdate is the body of PUT /api/user. Fields are overwritten, not
// merged.
type ProfileUpdate struct {
	Username    string `json:"username"`
	AboutMe     string `json:"aboutMe"`
	Preferences string `json:"preferences"`
}

type createProfileRequest struct {
	Username string `json:"username"`
	AboutMe  string `json:"aboutMe"`
}

type createProfileResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// StatusError is returned for a non-2xx response to a CRUD request.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 StatusError, returned by
// CreateProfile for an existing username.
func IsConflict(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == http.StatusConflict
}
