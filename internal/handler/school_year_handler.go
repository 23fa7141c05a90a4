package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aqnus/sis-api/internal/service"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
	"github.com/aqnus/sis-api/pkg/response"
)

// SchoolYearHandler exposes school year endpoints.
type SchoolYearHandler struct {
	years *service.SchoolYearService
}

// NewSchoolYearHandler constructs SchoolYearHandler.
func NewSchoolYearHandler(years *service.SchoolYearService) *SchoolYearHandler {
	return &SchoolYearHandler{years: years}
}

// List godoc
// @Summary List school years
// @Tags School Years
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /school-years [get]
func (h *SchoolYearHandler) List(c *gin.Context) {
	years, err := h.years.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// Get godoc
// @Summary Get school year
// @Tags School Years
// @Produce json
// @Param id path string true "School year ID"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id} [get]
func (h *SchoolYearHandler) Get(c *gin.Context) {
	year, err := h.years.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// Create godoc
// @Summary Create school year
// @Tags School Years
// @Accept json
// @Produce json
// @Param payload body service.CreateSchoolYearRequest true "School year payload"
// @Success 201 {object} response.Envelope
// @Router /school-years [post]
func (h *SchoolYearHandler) Create(c *gin.Context) {
	var req service.CreateSchoolYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.years.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// Update godoc
// @Summary Update school year
// @Tags School Years
// @Accept json
// @Produce json
// @Param id path string true "School year ID"
// @Param payload body service.UpdateSchoolYearRequest true "School year payload"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id} [put]
func (h *SchoolYearHandler) Update(c *gin.Context) {
	var req service.UpdateSchoolYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.years.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}
