package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqnus/sis-api/internal/models"
	"github.com/aqnus/sis-api/internal/service"
	appErrors "github.com/aqnus/sis-api/pkg/errors"
)

type libraryServiceMock struct {
	loanResp   *models.LoanDetail
	loanErr    error
	returnResp *models.LoanDetail
	returnErr  error
	returnedID string
	marked     int64
	listFilter models.LoanFilter
}

func (m *libraryServiceMock) ListLoans(ctx context.Context, filter models.LoanFilter) ([]models.LoanDetail, *models.Pagination, error) {
	m.listFilter = filter
	return []models.LoanDetail{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *libraryServiceMock) GetLoan(ctx context.Context, id string) (*models.LoanDetail, error) {
	if m.loanResp == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
	}
	return m.loanResp, nil
}

func (m *libraryServiceMock) Loan(ctx context.Context, req service.LoanRequest) (*models.LoanDetail, error) {
	if m.loanErr != nil {
		return nil, m.loanErr
	}
	return m.loanResp, nil
}

func (m *libraryServiceMock) Return(ctx context.Context, id string, req service.ReturnRequest) (*models.LoanDetail, error) {
	m.returnedID = id
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return m.returnResp, nil
}

func (m *libraryServiceMock) MarkOverdueLoans(ctx context.Context) (int64, error) {
	return m.marked, nil
}

func loanFixture() *models.LoanDetail {
	return &models.LoanDetail{
		Loan: models.Loan{
			ID:       "loan-1",
			CopyID:   "copy-1",
			LoanedAt: time.Date(2026, time.August, 20, 9, 0, 0, 0, time.UTC),
			DueAt:    time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC),
			Status:   models.LoanStatusActive,
		},
		InventoryCode: "INV-001",
		WorkTitle:     "Algebra I",
	}
}

func TestLibraryHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &libraryServiceMock{loanResp: loanFixture()}
	handler := NewLibraryHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.LoanRequest{CopyID: "copy-1", DueAt: time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC)})
	req, _ := http.NewRequest(http.MethodPost, "/loans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.LoanDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "loan-1", envelope.Data.ID)
	assert.Equal(t, "INV-001", envelope.Data.InventoryCode)
}

func TestLibraryHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLibraryHandler(&libraryServiceMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/loans", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
}

func TestLibraryHandlerReturnPropagatesConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &libraryServiceMock{returnErr: appErrors.Clone(appErrors.ErrInvalidState, "loan loan-1 already returned")}
	handler := NewLibraryHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/loans/loan-1/return", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "loan-1"}}

	handler.Return(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "loan-1", mock.returnedID)
}

func TestLibraryHandlerMarkOverdue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLibraryHandler(&libraryServiceMock{marked: 4})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/loan-sweeps", nil)
	c.Request = req

	handler.MarkOverdue(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, int64(4), envelope.Data["marked"])
}

func TestLibraryHandlerListNormalizesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &libraryServiceMock{}
	handler := NewLibraryHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/loans?status=overdue&copyId=copy-9", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LoanStatusOverdue, mock.listFilter.Status)
	assert.Equal(t, "copy-9", mock.listFilter.CopyID)
	assert.Equal(t, 1, mock.listFilter.Page)
	assert.Equal(t, 20, mock.listFilter.PageSize)
}
