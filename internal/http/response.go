package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"storefront/internal/apperr"
)

// envelope успешного ответа
type successBody struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Meta    *meta  `json:"meta,omitempty"`
}

// envelope ошибки
type errorBody struct {
	Code    int      `json:"code"`
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type meta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func respond(c *gin.Context, code int, message string, data any) {
	c.JSON(code, successBody{Code: code, Status: "success", Message: message, Data: data})
}

func respondPage(c *gin.Context, message string, data any, m meta) {
	c.JSON(http.StatusOK, successBody{Code: http.StatusOK, Status: "success", Message: message, Data: data, Meta: &m})
}

func abortWithError(c *gin.Context, code int, message string, details ...string) {
	c.AbortWithStatusJSON(code, errorBody{Code: code, Status: "error", Message: message, Details: details})
}

// writeError переводит ошибку сервиса в ответ; внутренние ошибки логируются и не раскрываются
func (s *Server) writeError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	if status == http.StatusInternalServerError {
		s.log.ErrorContext(c.Request.Context(), "request failed",
			"error", err, "path", c.FullPath(), "request_id", c.GetString(requestIDKey))
		abortWithError(c, status, "internal server error")
		return
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		abortWithError(c, status, ae.Message, ae.Details...)
		return
	}
	abortWithError(c, status, err.Error())
}

// bindError ответ на ошибку разбора тела или query
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, describeField(fe))
		}
		abortWithError(c, http.StatusBadRequest, "validation error", details...)
		return
	}
	abortWithError(c, http.StatusBadRequest, "invalid request", err.Error())
}

func describeField(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "datetime":
		return field + " must be a YYYY-MM-DD date"
	case "email":
		return field + " must be a valid email"
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func mapErrorToStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindInvalidRequest, apperr.KindInsufficientStock, apperr.KindInsufficientBalance:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
