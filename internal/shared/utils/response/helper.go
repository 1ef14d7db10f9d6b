package response

import (
	"errors"
	"net/http"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/pkg/logger"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondSuccess writes a success envelope
func RespondSuccess(c *gin.Context, code int, message string, data interface{}) {
	RespondJSON(c, "success", code, message, data, nil)
}

// RespondError maps a domain error onto the envelope. Typed errors expose
// their detail (entity, expected and actual status) in the errors field.
func RespondError(c *gin.Context, message string, err error) {
	code := apperr.HTTPStatus(err)

	var detail *apperr.Error
	var payload interface{} = err.Error()
	if errors.As(err, &detail) {
		payload = detail
	}
	if code >= http.StatusInternalServerError {
		logger.GetDefault().LogHTTPError(c, err, code)
		payload = "internal error"
	}

	RespondJSON(c, "error", code, message, nil, payload)
}
