// Package api serves a single quantized layer over HTTP.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qlinear/internal/device"
	"github.com/samcharles93/qlinear/internal/logger"
	"github.com/samcharles93/qlinear/internal/qlinear"
	"github.com/samcharles93/qlinear/internal/tensor"
	"github.com/samcharles93/qlinear/internal/version"
)

// Server exposes one Layer. Forward requests are serialized because a Layer
// is not safe for concurrent use.
type Server struct {
	mu     sync.Mutex
	layer  *qlinear.Layer
	device string
	log    logger.Logger
	clock  func() time.Time
}

func NewServer(layer *qlinear.Layer, deviceName string, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		layer:  layer,
		device: deviceName,
		log:    log,
		clock:  time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/forward", s.handleForward)
	e.GET("/v1/info", s.handleInfo)
}

func (s *Server) handleForward(c *echo.Context) error {
	if s.layer == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "layer not configured", "")
	}
	req, err := decodeJSON[ForwardRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	x, err := s.activation(req.Input)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	s.mu.Lock()
	out, err := s.layer.Forward(&x)
	s.mu.Unlock()
	if err != nil {
		return s.writeForwardError(c, err)
	}

	return c.JSON(http.StatusOK, ForwardResponse{
		ID:      newForwardID(),
		Object:  "forward",
		Created: s.clock().Unix(),
		Rows:    out.R,
		Cols:    out.C,
		Output:  out.Rows(),
	})
}

// activation converts request rows into a batch matrix. An empty input is an
// empty batch of the layer's width.
func (s *Server) activation(rows [][]float32) (tensor.Mat, error) {
	if len(rows) == 0 {
		return tensor.NewMat(0, s.layer.InputSize()), nil
	}
	x, err := tensor.FromRows(rows)
	if err != nil {
		return tensor.Mat{}, newInvalidRequest(fmt.Sprintf("input: %v", err))
	}
	return x, nil
}

func (s *Server) writeForwardError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, qlinear.ErrInputShape):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, qlinear.ErrClosed):
		return writeError(c, http.StatusServiceUnavailable, "server_error", err.Error(), "layer_closed")
	}
	code := "device_error"
	switch {
	case errors.Is(err, device.ErrAllocation):
		code = "device_allocation"
	case errors.Is(err, device.ErrTransfer):
		code = "device_transfer"
	case errors.Is(err, device.ErrGemm):
		code = "device_gemm"
	}
	s.log.Error("forward failed", "error", err, "code", code)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), code)
}

func (s *Server) handleInfo(c *echo.Context) error {
	if s.layer == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "layer not configured", "")
	}
	s.mu.Lock()
	capacity := s.layer.Capacity()
	s.mu.Unlock()
	return c.JSON(http.StatusOK, InfoResponse{
		Object:     "layer",
		LayerID:    s.layer.ID().String(),
		Device:     s.device,
		InputSize:  s.layer.InputSize(),
		OutputSize: s.layer.OutputSize(),
		HasBias:    s.layer.HasBias(),
		Capacity:   capacity,
		Version:    version.Resolve(),
	})
}
