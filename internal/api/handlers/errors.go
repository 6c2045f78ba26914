package handlers

import (
	"errors"
	"net/http"

	"github.com/citevault/citevault/internal/models"
)

// writeErr maps domain errors onto HTTP statuses. Anything unrecognized is a 500.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidReference):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrValidationFailure):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrConflictingJob):
		status = http.StatusConflict
	case errors.Is(err, models.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, models.ErrKeyRevoked):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrTransientDependency):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
