package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aqnus/sis-api/internal/models"
	"github.com/aqnus/sis-api/internal/service"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
	"github.com/aqnus/sis-api/pkg/response"
)

// CatalogHandler exposes bibliographic catalog and copy inventory endpoints.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListAuthors godoc
// @Summary List authors
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /authors [get]
func (h *CatalogHandler) ListAuthors(c *gin.Context) {
	authors, err := h.catalog.ListAuthors(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, authors, nil)
}

// CreateAuthor godoc
// @Summary Create author
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateAuthorRequest true "Author payload"
// @Success 201 {object} response.Envelope
// @Router /authors [post]
func (h *CatalogHandler) CreateAuthor(c *gin.Context) {
	var req service.CreateAuthorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	author, err := h.catalog.CreateAuthor(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, author)
}

// ListPublishers godoc
// @Summary List publishers
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /publishers [get]
func (h *CatalogHandler) ListPublishers(c *gin.Context) {
	publishers, err := h.catalog.ListPublishers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, publishers, nil)
}

// CreatePublisher godoc
// @Summary Create publisher
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreatePublisherRequest true "Publisher payload"
// @Success 201 {object} response.Envelope
// @Router /publishers [post]
func (h *CatalogHandler) CreatePublisher(c *gin.Context) {
	var req service.CreatePublisherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	publisher, err := h.catalog.CreatePublisher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, publisher)
}

// ListLibrarySubjects godoc
// @Summary List library subjects
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /library-subjects [get]
func (h *CatalogHandler) ListLibrarySubjects(c *gin.Context) {
	subjects, err := h.catalog.ListLibrarySubjects(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// CreateLibrarySubject godoc
// @Summary Create library subject
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateLibrarySubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Router /library-subjects [post]
func (h *CatalogHandler) CreateLibrarySubject(c *gin.Context) {
	var req service.CreateLibrarySubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subject, err := h.catalog.CreateLibrarySubject(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// ListWorks godoc
// @Summary List works
// @Tags Catalog
// @Produce json
// @Param search query string false "Search by title or ISBN"
// @Param publisherId query string false "Filter by publisher"
// @Param librarySubjectId query string false "Filter by library subject"
// @Param active query bool false "Filter by active status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /works [get]
func (h *CatalogHandler) ListWorks(c *gin.Context) {
	filter := models.WorkFilter{
		Search:           strings.TrimSpace(c.Query("search")),
		PublisherID:      c.Query("publisherId"),
		LibrarySubjectID: c.Query("librarySubjectId"),
		SortBy:           c.Query("sort"),
		SortOrder:        c.Query("order"),
	}
	if active := c.Query("active"); active != "" {
		switch strings.ToLower(active) {
		case "true":
			val := true
			filter.Active = &val
		case "false":
			val := false
			filter.Active = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	works, pagination, err := h.catalog.ListWorks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, works, pagination)
}

// GetWork godoc
// @Summary Get work with its authors
// @Tags Catalog
// @Produce json
// @Param id path string true "Work ID"
// @Success 200 {object} response.Envelope
// @Router /works/{id} [get]
func (h *CatalogHandler) GetWork(c *gin.Context) {
	work, err := h.catalog.GetWork(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, work, nil)
}

// CreateWork godoc
// @Summary Create work
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateWorkRequest true "Work payload"
// @Success 201 {object} response.Envelope
// @Router /works [post]
func (h *CatalogHandler) CreateWork(c *gin.Context) {
	var req service.CreateWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	work, err := h.catalog.CreateWork(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, work)
}

// UpdateWork godoc
// @Summary Update work
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Work ID"
// @Param payload body service.UpdateWorkRequest true "Work payload"
// @Success 200 {object} response.Envelope
// @Router /works/{id} [put]
func (h *CatalogHandler) UpdateWork(c *gin.Context) {
	var req service.UpdateWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	work, err := h.catalog.UpdateWork(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, work, nil)
}

// ListCopies godoc
// @Summary List copies
// @Tags Catalog
// @Produce json
// @Param workId query string false "Filter by work"
// @Param availability query string false "Filter by availability (AVAILABLE/LOANED/UNAVAILABLE/RETIRED)"
// @Param active query bool false "Filter by active status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /copies [get]
func (h *CatalogHandler) ListCopies(c *gin.Context) {
	filter := models.CopyFilter{
		WorkID:       c.Query("workId"),
		Availability: models.CopyAvailability(strings.ToUpper(c.Query("availability"))),
	}
	if active := c.Query("active"); active != "" {
		switch strings.ToLower(active) {
		case "true":
			val := true
			filter.Active = &val
		case "false":
			val := false
			filter.Active = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	copies, pagination, err := h.catalog.ListCopies(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, copies, pagination)
}

// CreateCopy godoc
// @Summary Register a copy
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateCopyRequest true "Copy payload"
// @Success 201 {object} response.Envelope
// @Router /copies [post]
func (h *CatalogHandler) CreateCopy(c *gin.Context) {
	var req service.CreateCopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	copyRow, err := h.catalog.CreateCopy(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, copyRow)
}

// UpdateCopyCondition godoc
// @Summary Update the physical condition of a copy
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Copy ID"
// @Param payload body service.UpdateCopyConditionRequest true "Condition payload"
// @Success 200 {object} response.Envelope
// @Router /copies/{id}/condition [put]
func (h *CatalogHandler) UpdateCopyCondition(c *gin.Context) {
	var req service.UpdateCopyConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	copyRow, err := h.catalog.UpdateCopyCondition(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, copyRow, nil)
}
