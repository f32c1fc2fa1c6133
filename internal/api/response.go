package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// envelope is the body of every JSON response
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Results interface{} `json:"results,omitempty"`
}

func ok(c *gin.Context, status int, results interface{}) {
	c.JSON(status, envelope{Success: true, Results: results})
}

func okMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: message})
}

// fail renders err with the status its kind maps to. Internal errors are
// logged and their details hidden.
func (h *Handler) fail(c *gin.Context, err error) {
	e := service.AsError(err)
	if e.Kind == service.KindInternal {
		h.logger.Error("Request failed",
			zap.String("request_id", requestIDFrom(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(e.Status(), envelope{Message: e.Message})
}

// bindError turns a gin binding failure into a validation error
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return service.ErrInvalidRequest.With(fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()), err)
	}
	return service.ErrInvalidRequest.With("Invalid request body", err)
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.ErrInvalidRequest.With(fmt.Sprintf("Invalid %s", name), err)
	}
	return id, nil
}
