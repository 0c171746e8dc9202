package controller

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pooly/backend/internal/dto"
	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler renders every failure as {success:false, code, message}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var status int
	var response errorResponse
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		response = errorResponse{Code: httpCode(status), Message: fmt.Sprint(httpErr.Message)}
	} else {
		code := dto.ErrorCode(err)
		status = statusFor(code)
		response = errorResponse{Code: code, Message: err.Error()}
		if status >= http.StatusInternalServerError {
			// driver errors stay in the log
			response.Message = dto.ErrStorageUnavailable.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		logrus.Errorf("Error handling %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, response)
	}
	if err != nil {
		logrus.Errorf("Error writing error response: %v", err)
	}
}

func statusFor(code string) int {
	switch code {
	case "UNAUTHENTICATED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	case "NOT_FOUND":
		return http.StatusNotFound
	case "CONFLICT", "ALREADY_UPVOTED", "NOT_UPVOTED":
		return http.StatusConflict
	case "BAD_USER_INPUT":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return "BAD_USER_INPUT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}
