package ratings

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	ratingsvc "github.com/aimd54/addon-ratings/internal/service/ratings"
)

// errorResponse maps a service error to its status code and sends a
// standardized error body.
func (h *Handler) errorResponse(c *gin.Context, err error) {
	var (
		ve *ratingsvc.ValidationError
		pe *ratingsvc.PermissionError
		ce *ratingsvc.ConflictError
		te *ratingsvc.ThrottledError
	)
	body := gin.H{"timestamp": time.Now().UTC()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		body["error"] = "Invalid input"
		body["fields"] = ve.Fields
	case errors.Is(err, ratingsvc.ErrUnauthenticated):
		status = http.StatusUnauthorized
		body["error"] = err.Error()
	case errors.As(err, &pe):
		status = http.StatusForbidden
		body["error"] = pe.Message
	case errors.Is(err, ratingsvc.ErrNotFound):
		status = http.StatusNotFound
		body["error"] = "Not found."
	case errors.As(err, &ce):
		status = http.StatusConflict
		body["error"] = ce.Message
	case errors.As(err, &te):
		status = http.StatusTooManyRequests
		seconds := int(te.RetryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		body["error"] = te.Error()
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		body["error"] = "Internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}
