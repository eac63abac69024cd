package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mantle-decode/internal/decode"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return c.JSON(status, ErrorResponse{Error: ResponseError{
		Message: msg,
		Type:    errType,
		Param:   param,
	}})
}

// writeDecodeError maps service errors onto status codes.
func writeDecodeError(c *echo.Context, err error) error {
	var cfgErr interface{ Field() string }
	switch {
	case errors.As(err, &cfgErr):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), cfgErr.Field())
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, decode.ErrInvalidConfig):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, ErrModelNotFound):
		return writeNotFound(c, err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
}

// decodeJSON reads a single JSON value and rejects unknown fields and
// trailing data.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	if dec.More() {
		return out, fmt.Errorf("unexpected data after JSON body")
	}
	return out, nil
}

func newDecodeID() string {
	return "dec_" + uuid.NewString()
}
