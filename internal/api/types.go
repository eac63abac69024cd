package api

import (
	"github.com/samcharles93/mantle-decode/internal/decode"
	"github.com/samcharles93/mantle-decode/internal/version"
)

// DecodeRequest is the body of POST /v1/decode. Decoding options sit at the
// top level next to model and prompts; unset options take the server defaults.
type DecodeRequest struct {
	Model   string          `json:"model,omitempty"`
	Prompts []decode.Prompt `json:"prompts"`
	// Store controls whether the result can be fetched again by id.
	Store *bool `json:"store,omitempty"`

	decode.Options
}

// DecodeResponse is returned by POST and GET /v1/decode.
type DecodeResponse struct {
	ID         string          `json:"id"`
	Object     string          `json:"object"`
	CreatedAt  int64           `json:"created_at"`
	Model      string          `json:"model,omitempty"`
	Status     string          `json:"status"`
	Config     decode.Config   `json:"config"`
	Outputs    []decode.Output `json:"outputs"`
	Steps      int             `json:"steps"`
	DurationMS float64         `json:"duration_ms"`
}

type DeleteDecodeResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// ModelInfo describes one model file found by the provider.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Path    string `json:"path,omitempty"`
}

type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type HealthResponse struct {
	Status  string       `json:"status"`
	Stored  int          `json:"stored"`
	Version version.Info `json:"version"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ResponseError `json:"error"`
}
