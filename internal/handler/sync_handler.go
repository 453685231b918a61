package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushub/lms-sync-api/internal/models"
	"github.com/campushub/lms-sync-api/internal/service"
	appErrors "github.com/campushub/lms-sync-api/pkg/errors"
	"github.com/campushub/lms-sync-api/pkg/response"
)

// SyncHandler exposes sync, export and roster read endpoints.
type SyncHandler struct {
	syncs *service.SyncService
}

// NewSyncHandler constructs handler.
func NewSyncHandler(syncs *service.SyncService) *SyncHandler {
	return &SyncHandler{syncs: syncs}
}

// Sync godoc
// @Summary Run a full sync pass for a connection
// @Description With async=true the sync is queued and runs in the background.
// @Tags Sync
// @Produce json
// @Param id path string true "Connection ID"
// @Param async query bool false "Queue the sync instead of running inline"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /connections/{id}/sync [post]
func (h *SyncHandler) Sync(c *gin.Context) {
	connectionID := c.Param("id")

	if c.Query("async") == "true" {
		if err := h.syncs.Enqueue(connectionID); err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, gin.H{"status": "queued", "connection_id": connectionID})
		return
	}

	result, err := h.syncs.Sync(c.Request.Context(), connectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// LastResult godoc
// @Summary Get the cached result of the most recent sync
// @Tags Sync
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} response.Envelope
// @Router /connections/{id}/sync/last [get]
func (h *SyncHandler) LastResult(c *gin.Context) {
	result := h.syncs.LastResult(c.Request.Context(), c.Param("id"))
	if result == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no sync result recorded"))
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ExportGrades godoc
// @Summary Push grade entries back to the provider
// @Tags Sync
// @Accept json
// @Produce json
// @Param id path string true "Connection ID"
// @Param payload body service.ExportGradesRequest true "Grades payload"
// @Success 200 {object} response.Envelope
// @Router /connections/{id}/grades/export [post]
func (h *SyncHandler) ExportGrades(c *gin.Context) {
	var req service.ExportGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.syncs.ExportGrades(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "exported", "count": len(req.Grades)}, nil)
}

// UpdateGrade godoc
// @Summary Update a single grade on the provider
// @Tags Sync
// @Accept json
// @Produce json
// @Param id path string true "Connection ID"
// @Param gradeId path string true "External grade ID"
// @Param payload body service.ExportGradeItem true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /connections/{id}/grades/{gradeId} [put]
func (h *SyncHandler) UpdateGrade(c *gin.Context) {
	var item service.ExportGradeItem
	if err := c.ShouldBindJSON(&item); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.syncs.UpdateGrade(c.Request.Context(), c.Param("id"), c.Param("gradeId"), item); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "updated", "grade_id": c.Param("gradeId")}, nil)
}

// CreateAssignment godoc
// @Summary Create a gradable item in the provider
// @Tags Sync
// @Accept json
// @Produce json
// @Param id path string true "Connection ID"
// @Param courseId path string true "External course ID"
// @Param payload body models.Assignment true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /connections/{id}/courses/{courseId}/assignments [post]
func (h *SyncHandler) CreateAssignment(c *gin.Context) {
	var assignment models.Assignment
	if err := c.ShouldBindJSON(&assignment); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	externalID, err := h.syncs.CreateAssignment(c.Request.Context(), c.Param("id"), c.Param("courseId"), assignment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"external_id": externalID})
}

// Users godoc
// @Summary List synced users from the canonical store
// @Tags Roster
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} response.Envelope
// @Router /connections/{id}/users [get]
func (h *SyncHandler) Users(c *gin.Context) {
	users, err := h.syncs.RosterUsers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, nil)
}

// Courses godoc
// @Summary List synced courses from the canonical store
// @Tags Roster
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} response.Envelope
// @Router /connections/{id}/courses [get]
func (h *SyncHandler) Courses(c *gin.Context) {
	courses, err := h.syncs.RosterCourses(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Summary godoc
// @Summary Roster counts and last sync time for a connection
// @Tags Roster
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} response.Envelope
// @Router /connections/{id}/roster/summary [get]
func (h *SyncHandler) Summary(c *gin.Context) {
	summary, err := h.syncs.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Grades godoc
// @Summary List synced grades from the canonical store
// @Tags Roster
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} response.Envelope
// @Router /connections/{id}/grades [get]
func (h *SyncHandler) Grades(c *gin.Context) {
	grades, err := h.syncs.RosterGrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}
