package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/mantle-decode/internal/version"
)

// Server exposes a DecodeService and its stored results over HTTP.
type Server struct {
	store   *ResultStore
	service *DecodeService
	metrics http.Handler
}

// NewServer returns a Server backed by store. A nil store gets the default
// capacity.
func NewServer(store *ResultStore, service *DecodeService) *Server {
	if store == nil {
		store = NewResultStore(0)
	}
	return &Server{
		store:   store,
		service: service,
		metrics: promhttp.Handler(),
	}
}

// Register mounts the decode, model, health and metrics routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/decode", s.handleDecode)
	e.GET("/v1/decode/:id", s.handleGetDecode)
	e.DELETE("/v1/decode/:id", s.handleDeleteDecode)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
}

func (s *Server) handleDecode(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "decode service not configured", "")
	}
	req, err := decodeJSON[DecodeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	resp, err := s.service.Decode(c.Request().Context(), &req)
	if err != nil {
		return writeDecodeError(c, err)
	}
	if req.Store == nil || *req.Store {
		s.store.Put(resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetDecode(c *echo.Context) error {
	id := c.Param("id")
	resp, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "decode result not found: "+id)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteDecode(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "decode result not found: "+id)
	}
	return c.JSON(http.StatusOK, DeleteDecodeResponse{
		ID:      id,
		Object:  "decode.deleted",
		Deleted: true,
	})
}

func (s *Server) handleListModels(c *echo.Context) error {
	data := []ModelInfo{}
	if s.service != nil && s.service.provider != nil {
		models, err := s.service.provider.ListModels()
		if err != nil {
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
		}
		data = append(data, models...)
	}
	return c.JSON(http.StatusOK, ModelList{Object: "list", Data: data})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Stored:  s.store.Len(),
		Version: version.Resolve(),
	})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.ServeHTTP(c.Response(), c.Request())
	return nil
}
