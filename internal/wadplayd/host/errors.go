package host

import (
	"errors"
	"net/http"

	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
)

// HTTPError is an error that carries its response status
type HTTPError interface {
	error
	StatusCode() int
}

type httpError struct {
	msg  string
	code int
}

func (e *httpError) Error() string {
	return e.msg
}

func (e *httpError) StatusCode() int {
	return e.code
}

func errInvalidRequest(msg string) error {
	return &httpError{msg: msg, code: http.StatusBadRequest}
}

// statusFor maps domain errors onto response codes
func statusFor(err error) (int, string) {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), he.Error()
	}
	switch {
	case errors.Is(err, werrors.ErrInvalidState):
		return http.StatusConflict, err.Error()
	case errors.Is(err, werrors.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, werrors.ErrNotFound):
		return http.StatusNotFound, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
