package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prestafacil/loandocs-api/internal/dto"
	"github.com/prestafacil/loandocs-api/internal/middleware"
	"github.com/prestafacil/loandocs-api/internal/models"
	appErrors "github.com/prestafacil/loandocs-api/pkg/errors"
)

type documentServiceMock struct {
	uploadInput  *dto.UploadInput
	uploadResult *dto.UploadResult
	reviewResult *models.Document
	reviewErr    error
	activeResult []models.Document
	downloadLink *dto.DownloadLink
	downloadData []byte
	downloadErr  error
}

func (m *documentServiceMock) Upload(ctx context.Context, input dto.UploadInput) (*dto.UploadResult, error) {
	m.uploadInput = &input
	if m.uploadResult == nil {
		doc := models.Document{ID: "doc-1", IsActive: true}
		m.uploadResult = &dto.UploadResult{Document: &doc}
	}
	return m.uploadResult, nil
}

func (m *documentServiceMock) Review(ctx context.Context, tenantID, documentID string, req dto.ReviewRequest) (*models.Document, error) {
	if m.reviewErr != nil {
		return nil, m.reviewErr
	}
	if m.reviewResult == nil {
		m.reviewResult = &models.Document{ID: documentID, Status: models.DocumentStatusApproved}
	}
	return m.reviewResult, nil
}

func (m *documentServiceMock) Get(ctx context.Context, tenantID, documentID string) (*models.Document, error) {
	return &models.Document{ID: documentID}, nil
}

func (m *documentServiceMock) QueryActive(ctx context.Context, tenantID string, owner models.OwnerRef, docType *models.DocumentType) ([]models.Document, error) {
	return m.activeResult, nil
}

func (m *documentServiceMock) GenerateDownloadURL(ctx context.Context, tenantID, documentID string) (*dto.DownloadLink, error) {
	if m.downloadLink == nil {
		m.downloadLink = &dto.DownloadLink{DocumentID: documentID, URL: "/downloads/tok", ExpiresAt: time.Now().Add(time.Minute)}
	}
	return m.downloadLink, nil
}

func (m *documentServiceMock) ResolveDownload(ctx context.Context, token string) ([]byte, string, error) {
	if m.downloadErr != nil {
		return nil, "", m.downloadErr
	}
	return m.downloadData, "application/pdf", nil
}

type attachmentServiceMock struct {
	tenantID string
	consumer models.ConsumerRef
	err      error
}

func (m *attachmentServiceMock) Attach(ctx context.Context, tenantID, documentID string, consumer models.ConsumerRef) (*dto.AttachResult, error) {
	m.tenantID = tenantID
	m.consumer = consumer
	if m.err != nil {
		return nil, m.err
	}
	doc := models.Document{ID: documentID, IsActive: true}
	return &dto.AttachResult{Document: &doc}, nil
}

func newDocumentTestContext(t *testing.T) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(middleware.ContextTenantKey, "tenant-1")
	return w, c
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	part, err := writer.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="` + filename + `"`},
		"Content-Type":        {"application/pdf"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestDocumentHandlerUpload(t *testing.T) {
	svc := &documentServiceMock{}
	h := NewDocumentHandler(svc, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	body, contentType := multipartUpload(t, map[string]string{
		"owner_kind": "person",
		"owner_id":   "person-1",
		"type":       "payslip",
		"metadata":   `{"source":"mobile"}`,
	}, "payslip.pdf", []byte("%PDF-1.4"))
	req, _ := http.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req

	h.Upload(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.uploadInput)
	assert.Equal(t, "tenant-1", svc.uploadInput.TenantID)
	assert.Equal(t, models.OwnerKindPerson, svc.uploadInput.Owner.Kind)
	assert.Equal(t, models.DocumentTypePayslip, svc.uploadInput.Type)
	assert.Equal(t, []byte("%PDF-1.4"), svc.uploadInput.Content)
	assert.Equal(t, "application/pdf", svc.uploadInput.ContentType)
	assert.Nil(t, svc.uploadInput.Consumer)
}

func TestDocumentHandlerUploadWithConsumer(t *testing.T) {
	svc := &documentServiceMock{}
	h := NewDocumentHandler(svc, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	body, contentType := multipartUpload(t, map[string]string{
		"owner_kind":    "PERSON",
		"owner_id":      "person-1",
		"type":          "PAYSLIP",
		"consumer_kind": "loan_application",
		"consumer_id":   "loan-1",
	}, "payslip.pdf", []byte("%PDF-1.4"))
	req, _ := http.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req

	h.Upload(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.uploadInput.Consumer)
	assert.Equal(t, models.ConsumerKindLoanApplication, svc.uploadInput.Consumer.Kind)
	assert.Equal(t, "loan-1", svc.uploadInput.Consumer.ID)
}

func TestDocumentHandlerUploadMissingFile(t *testing.T) {
	h := NewDocumentHandler(&documentServiceMock{}, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("owner_kind", "PERSON"))
	require.NoError(t, writer.WriteField("owner_id", "person-1"))
	require.NoError(t, writer.WriteField("type", "PAYSLIP"))
	require.NoError(t, writer.Close())
	req, _ := http.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req

	h.Upload(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandlerAttach(t *testing.T) {
	attach := &attachmentServiceMock{}
	h := NewDocumentHandler(&documentServiceMock{}, attach)
	w, c := newDocumentTestContext(t)

	body, _ := json.Marshal(dto.AttachRequest{ConsumerKind: "loan_application", ConsumerID: "loan-1"})
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/attach", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	h.Attach(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-1", attach.tenantID)
	assert.Equal(t, models.ConsumerKindLoanApplication, attach.consumer.Kind)
}

func TestDocumentHandlerAttachInvalidBody(t *testing.T) {
	h := NewDocumentHandler(&documentServiceMock{}, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/attach", bytes.NewReader([]byte(`{"consumerKind":"LOAN_APPLICATION"}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	h.Attach(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandlerAttachSupersededConflict(t *testing.T) {
	attach := &attachmentServiceMock{err: appErrors.Clone(appErrors.ErrDocumentSuperseded, "superseded")}
	h := NewDocumentHandler(&documentServiceMock{}, attach)
	w, c := newDocumentTestContext(t)

	body, _ := json.Marshal(dto.AttachRequest{ConsumerKind: "LOAN_APPLICATION", ConsumerID: "loan-1"})
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/attach", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	h.Attach(c)
	assert.Equal(t, appErrors.ErrDocumentSuperseded.Status, w.Code)
}

func TestDocumentHandlerReview(t *testing.T) {
	h := NewDocumentHandler(&documentServiceMock{}, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	body, _ := json.Marshal(dto.ReviewRequest{Decision: "approve"})
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/review", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	h.Review(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDocumentHandlerReviewInvalidTransition(t *testing.T) {
	svc := &documentServiceMock{reviewErr: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot approve a rejected document")}
	h := NewDocumentHandler(svc, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	body, _ := json.Marshal(dto.ReviewRequest{Decision: "APPROVE"})
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/review", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	h.Review(c)
	assert.Equal(t, appErrors.ErrInvalidTransition.Status, w.Code)
}

func TestDocumentHandlerActive(t *testing.T) {
	svc := &documentServiceMock{activeResult: []models.Document{{ID: "doc-1", IsActive: true}}}
	h := NewDocumentHandler(svc, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/active?owner_kind=person&owner_id=person-1&type=payslip", nil)
	c.Request = req

	h.Active(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDocumentHandlerActiveMissingOwner(t *testing.T) {
	h := NewDocumentHandler(&documentServiceMock{}, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/documents/active", nil)
	c.Request = req

	h.Active(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandlerDownload(t *testing.T) {
	svc := &documentServiceMock{downloadData: []byte("%PDF-1.4")}
	h := NewDocumentHandler(svc, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/downloads/tok", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte("%PDF-1.4"), w.Body.Bytes())
}

func TestDocumentHandlerDownloadInvalidToken(t *testing.T) {
	svc := &documentServiceMock{downloadErr: appErrors.Clone(appErrors.ErrSignedURLInvalid, "")}
	h := NewDocumentHandler(svc, &attachmentServiceMock{})
	w, c := newDocumentTestContext(t)

	req, _ := http.NewRequest(http.MethodGet, "/downloads/forged", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "forged"}}

	h.Download(c)
	assert.Equal(t, appErrors.ErrSignedURLInvalid.Status, w.Code)
}
