package remote

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDeploymentTimeout is returned when the deployment status poll
	// exhausts its bounded attempts without reaching a terminal state.
	ErrDeploymentTimeout = errors.New("deployment timed out")

	// ErrDeploymentFailed is returned when the platform reports an explicit
	// error status for a deployment. It is surfaced immediately, no retry.
	ErrDeploymentFailed = errors.New("deployment failed")

	// ErrApplicationNotFound is returned when an application cannot be
	// resolved by name.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrContainerNotFound is returned when no running container matches the
	// deployment's internal name.
	ErrContainerNotFound = errors.New("container not found")
)

// platformError carries an HTTP-level platform failure.
type platformError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *platformError) Error() string {
	return fmt.Sprintf("platform %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// isAlreadyExists reports whether an application creation failed because the
// name is taken, in which case the existing application is reused.
func isAlreadyExists(err error) bool {
	var pe *platformError
	if !errors.As(err, &pe) {
		return false
	}
	if pe.StatusCode == 400 {
		return true
	}
	return strings.Contains(strings.ToLower(pe.Body), "already exists")
}
