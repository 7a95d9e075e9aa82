package responses

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

type requestIDKey struct{}

// WithRequestID stores the request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// JSON writes data with status as an indented JSON body.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(data)
}

// Error writes err as an errors.ErrorResponse. Errors that are not an
// AppError are reported as internal errors without their message.
func Error(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.NewInternalError("internal server error")
	}

	status := errors.HTTPStatusOf(appErr)
	entry := logger.WithFields(logrus.Fields{
		"request_id": RequestID(r.Context()),
		"path":       r.URL.Path,
		"status":     status,
		"code":       appErr.Code,
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.WithError(err).Debug("Request rejected")
	}

	JSON(w, status, errors.ErrorResponse{
		Error:     appErr,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}
