package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"appointly/backend/internal/domain"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindAuthorization:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// handleError renders every handler error in the response envelope. Storage
// and unknown failures become a bare 500 and are logged with the cause.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	log := s.log.With(
		slog.String("method", c.Request().Method),
		slog.String("path", c.Path()),
		slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
	)

	status := http.StatusInternalServerError
	body := &errorBody{Code: "Internal", Message: "internal error"}

	var dErr *domain.Error
	var hErr *echo.HTTPError
	switch {
	case errors.As(err, &dErr):
		status = statusForKind(dErr.Kind)
		body = &errorBody{Code: dErr.Code, Message: dErr.Message}
		if dErr.Kind == domain.KindValidation {
			log.Warn("invalid request", slog.Any("err", err))
		} else {
			log.Info("request rejected", slog.String("code", dErr.Code), slog.Any("err", err))
		}
	case errors.As(err, &hErr):
		status = hErr.Code
		body = &errorBody{Code: codeForStatus(hErr.Code), Message: http.StatusText(hErr.Code)}
		if msg, isString := hErr.Message.(string); isString {
			body.Message = msg
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		body = &errorBody{Code: "Timeout", Message: "request timed out"}
		log.Warn("request timed out", slog.Any("err", err))
	default:
		log.Error("request failed", slog.Any("err", err))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, envelope{Success: false, Error: body})
	}
	if writeErr != nil {
		log.Error("error response write failed", slog.Any("err", writeErr))
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return domain.CodeInvalidInput
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return domain.CodeForbidden
	case http.StatusNotFound:
		return domain.CodeNotFound
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusTooManyRequests:
		return "RateLimited"
	case http.StatusServiceUnavailable:
		return "Unavailable"
	}
	return "Internal"
}
