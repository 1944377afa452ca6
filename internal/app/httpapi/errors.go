package httpapi

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/bookmate/bookmate/internal/app/services/books"
	"github.com/bookmate/bookmate/internal/appsscript"
	apperrors "github.com/bookmate/bookmate/internal/errors"
	"github.com/bookmate/bookmate/internal/httputil"
)

// fromUpstream maps service, webhook and Sheets failures onto the API error
// taxonomy. Errors that already carry a status pass through.
func fromUpstream(err error) *apperrors.ServiceError {
	if se := apperrors.GetServiceError(err); se != nil {
		return se
	}

	var remote *appsscript.RemoteError
	var httpErr *appsscript.HTTPError
	var gErr *googleapi.Error
	switch {
	case errors.As(err, &remote):
		return apperrors.Upstream(remote.Message, err).WithDetails("action", string(remote.Action))
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.UpstreamTimeout(err)
	case errors.Is(err, appsscript.ErrCircuitOpen):
		return apperrors.Unavailable("apps script is temporarily unavailable", err)
	case errors.Is(err, books.ErrSheetsDisabled):
		return apperrors.Unavailable("google sheets access is not configured", err)
	case errors.Is(err, appsscript.ErrUnexpectedResponse):
		return apperrors.Upstream("apps script returned an unexpected response", err)
	case errors.Is(err, appsscript.ErrTooManyRedirects), errors.Is(err, appsscript.ErrMissingLocation):
		return apperrors.Upstream("apps script redirect failed", err)
	case errors.As(err, &httpErr):
		return apperrors.Upstream("apps script request failed", err).WithDetails("upstream_status", httpErr.StatusCode)
	case errors.As(err, &gErr):
		switch gErr.Code {
		case http.StatusNotFound:
			return &apperrors.ServiceError{
				Code:       apperrors.CodeNotFound,
				Message:    "spreadsheet or range not found",
				HTTPStatus: http.StatusNotFound,
				Err:        err,
			}
		case http.StatusForbidden:
			return apperrors.Upstream("service account has no access to the spreadsheet", err)
		}
		return apperrors.Upstream("google sheets request failed", err).WithDetails("upstream_status", gErr.Code)
	case errors.Is(err, context.Canceled):
		return apperrors.Unavailable("request cancelled", err)
	}
	return apperrors.Internal("internal error", err)
}

// fail logs err with its upstream action and tenant, then writes the error envelope.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	se := fromUpstream(err)

	entry := h.log.WithContext(r.Context()).WithError(err).WithField("status", se.HTTPStatus)
	if action != "" {
		entry = entry.WithField("action", action)
	}
	switch {
	case se.HTTPStatus >= http.StatusInternalServerError:
		entry.Error("request failed")
	case se.HTTPStatus == http.StatusForbidden || se.HTTPStatus == http.StatusNotFound:
		entry.Info("request rejected")
	default:
		entry.Debug("request rejected")
	}

	httputil.WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}
