package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aqnus/sis-api/internal/models"
	"github.com/aqnus/sis-api/internal/service"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
	"github.com/aqnus/sis-api/pkg/response"
)

// QualificationHandler exposes teaching qualification endpoints.
type QualificationHandler struct {
	qualifications *service.QualificationService
}

// NewQualificationHandler constructs QualificationHandler.
func NewQualificationHandler(qualifications *service.QualificationService) *QualificationHandler {
	return &QualificationHandler{qualifications: qualifications}
}

// List godoc
// @Summary List qualifications
// @Tags Qualifications
// @Produce json
// @Param teacherId query string false "Filter by teacher"
// @Param subjectId query string false "Filter by subject"
// @Param schoolYearId query string false "Filter by school year"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /qualifications [get]
func (h *QualificationHandler) List(c *gin.Context) {
	filter := models.QualificationFilter{
		TeacherID:    c.Query("teacherId"),
		SubjectID:    c.Query("subjectId"),
		SchoolYearID: c.Query("schoolYearId"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	qualifications, pagination, err := h.qualifications.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, qualifications, pagination)
}

// Grant godoc
// @Summary Grant a teaching qualification
// @Tags Qualifications
// @Accept json
// @Produce json
// @Param payload body service.GrantQualificationRequest true "Qualification payload"
// @Success 201 {object} response.Envelope
// @Router /qualifications [post]
func (h *QualificationHandler) Grant(c *gin.Context) {
	var req service.GrantQualificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	qualification, err := h.qualifications.Grant(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, qualification)
}

// Revoke godoc
// @Summary Revoke a teaching qualification
// @Tags Qualifications
// @Produce json
// @Param id path string true "Qualification ID"
// @Success 204 {object} nil
// @Router /qualifications/{id} [delete]
func (h *QualificationHandler) Revoke(c *gin.Context) {
	if err := h.qualifications.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
