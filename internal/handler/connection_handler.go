package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushub/lms-sync-api/internal/service"
	appErrors "github.com/campushub/lms-sync-api/pkg/errors"
	"github.com/campushub/lms-sync-api/pkg/response"
)

// ConnectionHandler exposes LMS connection administration endpoints.
type ConnectionHandler struct {
	registry *service.RegistryService
}

// NewConnectionHandler constructs handler.
func NewConnectionHandler(registry *service.RegistryService) *ConnectionHandler {
	return &ConnectionHandler{registry: registry}
}

// Register godoc
// @Summary Register an LMS connection
// @Tags Connections
// @Accept json
// @Produce json
// @Param payload body service.RegisterConnectionRequest true "Connection payload"
// @Success 201 {object} response.Envelope
// @Router /connections [post]
func (h *ConnectionHandler) Register(c *gin.Context) {
	var req service.RegisterConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conn, err := h.registry.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, conn)
}

// List godoc
// @Summary List registered connections with their last sync result
// @Tags Connections
// @Produce json
// @Param institutionId query string false "Filter by institution"
// @Success 200 {object} response.Envelope
// @Router /connections [get]
func (h *ConnectionHandler) List(c *gin.Context) {
	summaries, err := h.registry.List(c.Request.Context(), c.Query("institutionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}

// Get godoc
// @Summary Get one connection
// @Tags Connections
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} response.Envelope
// @Router /connections/{id} [get]
func (h *ConnectionHandler) Get(c *gin.Context) {
	conn, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conn, nil)
}

// Remove godoc
// @Summary Remove a connection and its live adapter
// @Tags Connections
// @Produce json
// @Param id path string true "Connection ID"
// @Success 204
// @Router /connections/{id} [delete]
func (h *ConnectionHandler) Remove(c *gin.Context) {
	removed, err := h.registry.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !removed {
		response.Error(c, appErrors.ErrConnectionNotFound)
		return
	}
	response.NoContent(c)
}
