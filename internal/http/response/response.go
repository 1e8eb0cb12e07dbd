package response

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/store-composite/internal/platform/apierr"
)

// ErrorInfo is the body of every error response.
type ErrorInfo struct {
	HTTPStatus string    `json:"httpStatus"`
	Message    string    `json:"message"`
	Path       string    `json:"path"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusName renders a status code the way the error body carries it,
// e.g. 422 -> "UNPROCESSABLE_ENTITY".
func StatusName(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}

// RespondError writes err with the status its apierr kind maps to and
// aborts the chain.
func RespondError(c *gin.Context, err error) {
	status := apierr.StatusOf(err)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	RespondErrorStatus(c, status, msg)
}

func RespondErrorStatus(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorInfo{
		HTTPStatus: StatusName(status),
		Message:    msg,
		Path:       c.Request.URL.Path,
		Timestamp:  time.Now().UTC(),
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
