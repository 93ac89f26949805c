package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/handler/dto"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
	"github.com/yourusername/exam-portal-api/internal/service"
)

// AccessHandler обрабатывает админские запросы к партиям кодов доступа
type AccessHandler struct {
	accessService *service.AccessService
}

// NewAccessHandler создает новый обработчик кодов доступа
func NewAccessHandler(accessService *service.AccessService) *AccessHandler {
	return &AccessHandler{accessService: accessService}
}

// GenerateBatch генерирует партию кодов для компании
// POST /api/admin/batches
func (h *AccessHandler) GenerateBatch(c *gin.Context) {
	var req dto.GenerateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batchID, codes, err := h.accessService.GenerateBatch(req.CompanyName, req.Count, req.ExamID)
	if err != nil {
		h.handleAccessError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewBatchCodesResponse(batchID, codes))
}

// Dashboard возвращает сводку по партиям и статусам кодов
// GET /api/admin/batches
func (h *AccessHandler) Dashboard(c *gin.Context) {
	stats, err := h.accessService.Dashboard()
	if err != nil {
		h.handleAccessError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// BatchCodes возвращает коды партии
// GET /api/admin/batches/:batch_id/codes
func (h *AccessHandler) BatchCodes(c *gin.Context) {
	batchID := c.Param("batch_id")

	codes, err := h.accessService.BatchCodes(batchID)
	if err != nil {
		h.handleAccessError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBatchCodesResponse(batchID, codes))
}

// ExportBatch выгружает коды партии в CSV или XLSX для передачи компании
// GET /api/admin/batches/:batch_id/export?format=csv|xlsx
func (h *AccessHandler) ExportBatch(c *gin.Context) {
	batchID := c.Param("batch_id")
	format := c.DefaultQuery("format", "csv")

	codes, err := h.accessService.BatchCodes(batchID)
	if err != nil {
		h.handleAccessError(c, err)
		return
	}

	filename := fmt.Sprintf("codes_%s_%s", codes[0].CompanyName, time.Now().Format("2006-01-02"))

	switch format {
	case "xlsx":
		h.exportBatchXLSX(c, codes, filename)
	default:
		h.exportBatchCSV(c, codes, filename)
	}
}

// DeleteBatch удаляет партию
// DELETE /api/admin/batches/:batch_id
func (h *AccessHandler) DeleteBatch(c *gin.Context) {
	batchID := c.Param("batch_id")

	deleted, err := h.accessService.DeleteBatch(batchID)
	if err != nil {
		h.handleAccessError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Batch deleted", "deleted": deleted})
}

// RenameBatch меняет компанию у всей партии
// PUT /api/admin/batches/:batch_id/company
func (h *AccessHandler) RenameBatch(c *gin.Context) {
	batchID := c.Param("batch_id")

	var req dto.RenameBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.accessService.RenameBatchCompany(batchID, req.CompanyName)
	if err != nil {
		h.handleAccessError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Company updated", "updated": updated})
}

// ResetCode возвращает код в ACTIVE с новым значением
// POST /api/admin/codes/:code_id/reset
func (h *AccessHandler) ResetCode(c *gin.Context) {
	codeID := c.MustGet("codeID").(uint)

	record, err := h.accessService.ResetCode(codeID)
	if err != nil {
		h.handleAccessError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAttemptResponse(record))
}

// MarkDelivered отмечает код как отправленный компании
// POST /api/admin/codes/:code_id/delivered
func (h *AccessHandler) MarkDelivered(c *gin.Context) {
	codeID := c.MustGet("codeID").(uint)

	record, err := h.accessService.MarkDelivered(codeID)
	if err != nil {
		h.handleAccessError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAttemptResponse(record))
}

var batchExportHeaders = []string{"Access Code", "Company", "Status", "Created At"}

func batchExportRow(r *entity.ExamAccess) []string {
	return []string{
		r.AccessCode,
		sanitizeForExcel(r.CompanyName),
		r.Status,
		r.CreatedAt.Format(time.RFC3339),
	}
}

func (h *AccessHandler) exportBatchCSV(c *gin.Context, codes []entity.ExamAccess, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

	// BOM для корректного отображения UTF-8 в Excel
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write(batchExportHeaders)
	for i := range codes {
		writer.Write(batchExportRow(&codes[i]))
	}
}

func (h *AccessHandler) exportBatchXLSX(c *gin.Context, codes []entity.ExamAccess, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Codes"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[AccessHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := make([]interface{}, len(batchExportHeaders))
	for i, head := range batchExportHeaders {
		headers[i] = head
	}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[AccessHandler] Ошибка записи заголовков: %v", err)
	}

	for i := range codes {
		cells := batchExportRow(&codes[i])
		row := make([]interface{}, len(cells))
		for j, cell := range cells {
			row[j] = cell
		}
		if err := sw.SetRow(fmt.Sprintf("A%d", i+2), row); err != nil {
			log.Printf("[AccessHandler] Ошибка записи строки %d: %v", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[AccessHandler] Ошибка при Flush: %v", err)
	}
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[AccessHandler] Ошибка записи Excel в response: %v", err)
	}
}

// handleAccessError обрабатывает ошибки сервиса кодов доступа
func (h *AccessHandler) handleAccessError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrValidation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	} else {
		log.Printf("ERROR: Internal server error in AccessHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
