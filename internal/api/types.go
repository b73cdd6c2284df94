package api

import "github.com/samcharles93/qlinear/internal/version"

// ForwardRequest carries one activation batch, one inner slice per row.
type ForwardRequest struct {
	Input [][]float32 `json:"input"`
}

type ForwardResponse struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Rows    int         `json:"rows"`
	Cols    int         `json:"cols"`
	Output  [][]float32 `json:"output"`
}

type InfoResponse struct {
	Object     string       `json:"object"`
	LayerID    string       `json:"layer_id"`
	Device     string       `json:"device"`
	InputSize  int          `json:"input_size"`
	OutputSize int          `json:"output_size"`
	HasBias    bool         `json:"has_bias"`
	Capacity   int          `json:"capacity"`
	Version    version.Info `json:"version"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}
