package handlers

import (
	"fmt"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"curanova-server/internal/blobstore"
	"curanova-server/internal/catalog"
	"curanova-server/internal/middleware"
	"curanova-server/internal/services"
	"curanova-server/internal/utils"
)

// MaxResultFileSize bounds uploaded result documents.
const MaxResultFileSize = 20 << 20

// TestHandler serves the test catalog and the lifecycle of ordered tests.
type TestHandler struct {
	diagnostics *services.DiagnosticService
	catalog     *catalog.Catalog
}

func NewTestHandler(diagnostics *services.DiagnosticService, cat *catalog.Catalog) *TestHandler {
	return &TestHandler{diagnostics: diagnostics, catalog: cat}
}

// AttachResultRequest records a result reference produced elsewhere.
type AttachResultRequest struct {
	ResultRef string `json:"resultRef" binding:"required"`
}

// Catalog lists the orderable tests.
func (h *TestHandler) Catalog(c *gin.Context) {
	utils.Success(c, "Test catalog fetched successfully", h.catalog.All())
}

// ResultURL returns a download link for one of the patient's test results.
func (h *TestHandler) ResultURL(c *gin.Context) {
	patientID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Patient not resolved")
		return
	}
	url, err := h.diagnostics.ResultURL(c.Request.Context(), patientID, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Result link created", gin.H{"url": url})
}

// StartTest moves a pending test to in_progress.
func (h *TestHandler) StartTest(c *gin.Context) {
	test, err := h.diagnostics.StartTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Test started", test)
}

// AttachResult completes a test with an existing result reference.
func (h *TestHandler) AttachResult(c *gin.Context) {
	var req AttachResultRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	test, err := h.diagnostics.AttachResult(c.Request.Context(), c.Param("id"), req.ResultRef)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Test result recorded", test)
}

// UploadResult stores the multipart "file" in object storage and completes the test.
func (h *TestHandler) UploadResult(c *gin.Context) {
	if !h.diagnostics.ResultFilesEnabled() {
		utils.NotImplemented(c, "Result file storage is not configured")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "A result file is required in the \"file\" field")
		return
	}
	if header.Size > MaxResultFileSize {
		utils.BadRequest(c, fmt.Sprintf("Result file exceeds %d MB", MaxResultFileSize>>20))
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.BadRequest(c, "Could not read the uploaded file")
		return
	}
	defer file.Close()

	test, err := h.diagnostics.UploadResult(c.Request.Context(), c.Param("id"), blobstore.Object{
		FileName:    filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Test result uploaded", test)
}
