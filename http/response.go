package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/scenequery/api"
	"github.com/aukilabs/scenequery/models"
	"github.com/aukilabs/scenequery/pruner"
	"github.com/segmentio/encoding/json"
)

const maxBodySize = 8 << 20

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// StatusCode returns the HTTP status code matching the type of err.
func StatusCode(err error) int {
	switch errors.Type(err) {
	case api.ErrTypeInvalidRequest,
		pruner.ErrTypeInvalidBox,
		pruner.ErrTypeLengthMismatch:
		return http.StatusBadRequest

	case models.ErrTypeSceneNotFound,
		models.ErrTypeObjectNotFound:
		return http.StatusNotFound

	case pruner.ErrTypeDuplicatePayload:
		return http.StatusConflict

	case pruner.ErrTypeCapacityExceeded:
		return http.StatusInsufficientStorage

	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Error(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		logs.Error(err)
	} else {
		logs.Debug(err)
	}

	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Type:  errors.Type(err),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		return errors.New("decoding request body failed").
			WithType(api.ErrTypeInvalidRequest).
			WithTag("path", r.URL.Path).
			Wrap(err)
	}
	return nil
}
