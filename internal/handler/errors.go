package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trade-ledger/internal/service"
	"github.com/trade-ledger/pkg/response"
)

// respondError maps service error kinds onto status codes. Unexpected
// errors are logged and reported without detail.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Invalid(c, verr.Error(), verr.Fields)
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrJournalHalted):
		response.Error(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrUpstreamUnavailable):
		response.Error(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, err.Error())
	default:
		_ = c.Error(err)
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalError(c, "internal error")
	}
}

// bindInput decodes the request body, reporting every mistyped field.
func bindInput(c *gin.Context, dst interface{}) error {
	data, err := c.GetRawData()
	if err != nil {
		return service.NewValidationError("body", "could not read request body")
	}
	return service.DecodeInput(data, dst)
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, name string, verr *service.ValidationError) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		verr.Add(name, "must be an integer")
		return 0
	}
	return n
}

// splitList splits a comma separated query value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
