package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/taskman/taskman/internal/auth"
	"github.com/taskman/taskman/internal/domain"
	"github.com/taskman/taskman/internal/platform/correlation"
	apperrors "github.com/taskman/taskman/internal/platform/errors"
)

const (
	headerRequestID = correlation.HeaderRequestID
	ctxKeyUserID    = "userID"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromRequest(c.Request())
		c.Response().Header().Set(headerRequestID, id)
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// requireAuth accepts only the Authorization header; the query-string
// token is reserved for websocket handshakes.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		raw, ok := auth.BearerToken(c.Request().Header)
		if !ok {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			return apperrors.UnauthorizedError("authentication required", auth.ErrMissing)
		}

		userID, err := s.verifier.VerifyToken(ctx, raw)
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
				return apperrors.UnauthorizedError("invalid or expired token", err).
					WithField("reason", string(authErr.Reason))
			}
			return apperrors.InternalError("failed to verify credentials", err)
		}

		c.Set(ctxKeyUserID, userID)
		c.SetRequest(c.Request().WithContext(correlation.WithUserID(ctx, int64(userID))))
		return next(c)
	}
}

func currentUser(c echo.Context) domain.UserID {
	id, _ := c.Get(ctxKeyUserID).(domain.UserID)
	return id
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			return HandleError(c, err)
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeUnauthorized:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.InfoContext(ctx, "Unauthorized", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal, apperrors.TypeExternal, apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Request failed", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)

	resp := structuredErr.ToResponse()
	if structuredErr.Type == apperrors.TypeUnauthorized {
		resp.Context = nil
	}
	if err := c.JSON(structuredErr.HTTPStatus(), resp); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

// bindError turns a malformed body or query into a validation error.
func bindError(err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code == http.StatusBadRequest {
		msg, _ := httpErr.Message.(string)
		if msg == "" {
			msg = "malformed request"
		}
		return apperrors.ValidationError(msg)
	}
	return apperrors.ValidationError("malformed request")
}
