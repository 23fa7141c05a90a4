package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aqnus/sis-api/internal/service"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
	"github.com/aqnus/sis-api/pkg/response"
)

// TimetableHandler exposes timetable and lesson placement endpoints.
type TimetableHandler struct {
	timetables *service.TimetableService
}

// NewTimetableHandler constructs TimetableHandler.
func NewTimetableHandler(timetables *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{timetables: timetables}
}

// Create godoc
// @Summary Create timetable version
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body service.CreateTimetableRequest true "Timetable payload"
// @Success 201 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	var req service.CreateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	timetable, err := h.timetables.CreateTimetable(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, timetable)
}

// Active godoc
// @Summary Get the active timetable for a class and school year
// @Tags Timetables
// @Produce json
// @Param classId query string true "Class ID"
// @Param schoolYearId query string true "School year ID"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) Active(c *gin.Context) {
	classID := c.Query("classId")
	schoolYearID := c.Query("schoolYearId")
	if classID == "" || schoolYearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classId and schoolYearId are required"))
		return
	}
	timetable, err := h.timetables.GetActiveTimetable(c.Request.Context(), classID, schoolYearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Get godoc
// @Summary Get timetable with its lessons
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	timetable, err := h.timetables.GetTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// Activate godoc
// @Summary Activate a timetable version
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/activate [post]
func (h *TimetableHandler) Activate(c *gin.Context) {
	timetable, err := h.timetables.ActivateTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}

// AddItem godoc
// @Summary Place a lesson on a timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body service.LessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /timetables/{id}/items [post]
func (h *TimetableHandler) AddItem(c *gin.Context) {
	var req service.LessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.timetables.AddLesson(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateItem godoc
// @Summary Update a lesson placement
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable item ID"
// @Param payload body service.UpdateLessonRequest true "Lesson changes"
// @Success 200 {object} response.Envelope
// @Router /timetable-items/{id} [put]
func (h *TimetableHandler) UpdateItem(c *gin.Context) {
	var req service.UpdateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.timetables.UpdateLesson(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteItem godoc
// @Summary Remove a lesson placement
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable item ID"
// @Success 204 {object} nil
// @Router /timetable-items/{id} [delete]
func (h *TimetableHandler) DeleteItem(c *gin.Context) {
	if err := h.timetables.RemoveLesson(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
