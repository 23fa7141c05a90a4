package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aqnus/sis-api/internal/models"
	"github.com/aqnus/sis-api/internal/service"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
	"github.com/aqnus/sis-api/pkg/response"
)

type libraryService interface {
	ListLoans(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error)
	GetLoan(ctx context.Context, id string) (*models.LoanDetail, error)
	Loan(ctx context.Context, req service.LoanRequest) (*models.LoanDetail, error)
	Return(ctx context.Context, id string, req service.ReturnRequest) (*models.LoanDetail, error)
	MarkOverdueLoans(ctx context.Context) (int64, error)
}

// LibraryHandler exposes loan circulation endpoints.
type LibraryHandler struct {
	library libraryService
}

// NewLibraryHandler constructs LibraryHandler.
func NewLibraryHandler(library libraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// List godoc
// @Summary List loans
// @Tags Loans
// @Produce json
// @Param copyId query string false "Filter by copy"
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param status query string false "Filter by status (ACTIVE/RETURNED/OVERDUE)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /loans [get]
func (h *LibraryHandler) List(c *gin.Context) {
	var filter models.LoanFilter
	filter.CopyID = c.Query("copyId")
	filter.StudentID = c.Query("studentId")
	filter.ClassID = c.Query("classId")
	filter.Status = models.LoanStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	loans, pagination, err := h.library.ListLoans(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination)
}

// Get godoc
// @Summary Get loan
// @Tags Loans
// @Produce json
// @Param id path string true "Loan ID"
// @Success 200 {object} response.Envelope
// @Router /loans/{id} [get]
func (h *LibraryHandler) Get(c *gin.Context) {
	loan, err := h.library.GetLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// Create godoc
// @Summary Loan a copy
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body service.LoanRequest true "Loan payload"
// @Success 201 {object} response.Envelope
// @Router /loans [post]
func (h *LibraryHandler) Create(c *gin.Context) {
	var req service.LoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	loan, err := h.library.Loan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// Return godoc
// @Summary Return a loaned copy
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path string true "Loan ID"
// @Param payload body service.ReturnRequest true "Return payload"
// @Success 200 {object} response.Envelope
// @Router /loans/{id}/return [post]
func (h *LibraryHandler) Return(c *gin.Context) {
	var req service.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	loan, err := h.library.Return(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// MarkOverdue godoc
// @Summary Flag past-due active loans as overdue
// @Tags Loans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /loan-sweeps [post]
func (h *LibraryHandler) MarkOverdue(c *gin.Context) {
	marked, err := h.library.MarkOverdueLoans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"marked": marked}, nil)
}
