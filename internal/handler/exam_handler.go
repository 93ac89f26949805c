package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/handler/dto"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
	"github.com/yourusername/exam-portal-api/internal/service"
)

// ExamHandler обрабатывает админские запросы к экзаменам и вопросам
type ExamHandler struct {
	examService    *service.ExamService
	accessService  *service.AccessService
	attemptService *service.AttemptService
}

// NewExamHandler создает новый обработчик экзаменов
func NewExamHandler(
	examService *service.ExamService,
	accessService *service.AccessService,
	attemptService *service.AttemptService,
) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		accessService:  accessService,
		attemptService: attemptService,
	}
}

// ExamRequest представляет запрос на создание/обновление экзамена
type ExamRequest struct {
	Title            string `json:"title" binding:"required,min=3,max=100"`
	DurationMin      int    `json:"duration_min" binding:"required,min=1,max=600"`
	Language         string `json:"language" binding:"max=20"`
	IsActive         bool   `json:"is_active"`
	PassThresholdPct *int   `json:"pass_threshold_pct,omitempty" binding:"omitempty,min=0,max=100"`
}

// QuestionRequest представляет запрос на создание/обновление вопроса
type QuestionRequest struct {
	Text          string   `json:"text" binding:"required,min=3,max=500"`
	Options       []string `json:"options" binding:"required,min=2,max=5"`
	CorrectOption int      `json:"correct_option" binding:"min=0"`
	Marks         int      `json:"marks" binding:"omitempty,min=1,max=100"`
}

// CreateExam создает экзамен
// POST /api/admin/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req ExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exam := &entity.Exam{
		Title:       req.Title,
		DurationMin: req.DurationMin,
		Language:    req.Language,
		IsActive:    req.IsActive,
		CreatorID:   c.MustGet("user_id").(uint),
	}
	if req.Language == "" {
		exam.Language = "English"
	}
	if req.PassThresholdPct != nil {
		exam.PassThresholdPct = *req.PassThresholdPct
	} else {
		exam.PassThresholdPct = 50
	}

	if err := h.examService.CreateExam(exam); err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewExamResponse(exam, false))
}

// ListExams возвращает страницу экзаменов
// GET /api/admin/exams
func (h *ExamHandler) ListExams(c *gin.Context) {
	page, perPage := pagination(c)

	exams, total, err := h.examService.ListExams(perPage, (page-1)*perPage)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	items := make([]*dto.ExamResponse, 0, len(exams))
	for i := range exams {
		items = append(items, dto.NewExamWithCountResponse(&exams[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"exams":    items,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// GetExam возвращает экзамен с вопросами (админский вид, с правильными ответами)
// GET /api/admin/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID := c.MustGet("examID").(uint)

	exam, err := h.examService.GetExamWithQuestions(examID)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	questions := make([]dto.AdminQuestionResponse, 0, len(exam.Questions))
	for i := range exam.Questions {
		questions = append(questions, dto.NewAdminQuestionResponse(&exam.Questions[i]))
	}

	resp := dto.NewExamResponse(exam, false)
	c.JSON(http.StatusOK, gin.H{"exam": resp, "questions": questions})
}

// UpdateExam обновляет экзамен
// PUT /api/admin/exams/:id
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	examID := c.MustGet("examID").(uint)

	var req ExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exam, err := h.examService.GetExam(examID)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	exam.Title = req.Title
	exam.DurationMin = req.DurationMin
	if req.Language != "" {
		exam.Language = req.Language
	}
	exam.IsActive = req.IsActive
	if req.PassThresholdPct != nil {
		exam.PassThresholdPct = *req.PassThresholdPct
	}

	if err := h.examService.UpdateExam(exam); err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewExamResponse(exam, false))
}

// DeleteExam удаляет экзамен вместе с вопросами
// DELETE /api/admin/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	examID := c.MustGet("examID").(uint)

	if err := h.examService.DeleteExam(examID); err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Exam deleted"})
}

// AddQuestion добавляет вопрос в экзамен
// POST /api/admin/exams/:id/questions
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	examID := c.MustGet("examID").(uint)

	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question := &entity.Question{
		ExamID:        examID,
		Text:          req.Text,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		Marks:         req.Marks,
	}

	if err := h.examService.AddQuestion(question); err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewAdminQuestionResponse(question))
}

// GetQuestions возвращает вопросы экзамена (админский вид)
// GET /api/admin/exams/:id/questions
func (h *ExamHandler) GetQuestions(c *gin.Context) {
	examID := c.MustGet("examID").(uint)

	questions, err := h.examService.GetQuestions(examID)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	items := make([]dto.AdminQuestionResponse, 0, len(questions))
	for i := range questions {
		items = append(items, dto.NewAdminQuestionResponse(&questions[i]))
	}

	c.JSON(http.StatusOK, gin.H{"questions": items})
}

// UpdateQuestion обновляет вопрос
// PUT /api/admin/questions/:question_id
func (h *ExamHandler) UpdateQuestion(c *gin.Context) {
	questionID := c.MustGet("questionID").(uint)

	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question := &entity.Question{
		ID:            questionID,
		Text:          req.Text,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		Marks:         req.Marks,
	}

	if err := h.examService.UpdateQuestion(question); err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAdminQuestionResponse(question))
}

// DeleteQuestion удаляет вопрос
// DELETE /api/admin/questions/:question_id
func (h *ExamHandler) DeleteQuestion(c *gin.Context) {
	questionID := c.MustGet("questionID").(uint)

	if err := h.examService.DeleteQuestion(questionID); err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question deleted"})
}

// ListAttempts возвращает попытки по экзамену
// GET /api/admin/exams/:id/attempts
func (h *ExamHandler) ListAttempts(c *gin.Context) {
	examID := c.MustGet("examID").(uint)
	page, perPage := pagination(c)

	records, total, err := h.accessService.ListAttempts(examID, perPage, (page-1)*perPage)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempts": dto.NewAttemptResponses(records),
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// GetAttemptReport возвращает отчёт по одной попытке с разбором ответов
// GET /api/admin/attempts/:attempt_id/report
func (h *ExamHandler) GetAttemptReport(c *gin.Context) {
	attemptID := c.MustGet("attemptID").(uint)

	report, access, err := h.attemptService.Report(attemptID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotStarted) || errors.Is(err, service.ErrNoExamSelected) {
			c.JSON(http.StatusConflict, gin.H{"error": "Attempt is not completed yet"})
			return
		}
		h.handleExamError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt": dto.NewAttemptResponse(access),
		"report":  report,
	})
}

// ExportAttempts выгружает попытки экзамена в CSV или XLSX
// GET /api/admin/exams/:id/attempts/export?format=csv|xlsx
func (h *ExamHandler) ExportAttempts(c *gin.Context) {
	examID := c.MustGet("examID").(uint)
	format := c.DefaultQuery("format", "csv")

	exam, err := h.examService.GetExam(examID)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	// Все попытки без пагинации для экспорта
	records, _, err := h.accessService.ListAttempts(examID, 0, 0)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	filename := fmt.Sprintf("exam_%d_attempts_%s", exam.ID, time.Now().Format("2006-01-02"))

	switch format {
	case "xlsx":
		h.exportXLSX(c, records, filename)
	default:
		h.exportCSV(c, records, filename)
	}
}

var attemptExportHeaders = []string{
	"Access Code", "Company", "Student", "Email", "Phone",
	"Supervisor", "Status", "Score", "Late", "Expired", "Started At", "Submitted At",
}

func attemptExportRow(r *entity.ExamAccess) []string {
	score := ""
	if r.Score != nil {
		score = strconv.Itoa(*r.Score)
	}
	return []string{
		r.AccessCode,
		sanitizeForExcel(r.CompanyName),
		sanitizeForExcel(r.StudentName),
		sanitizeForExcel(r.StudentEmail),
		sanitizeForExcel(r.StudentPhone),
		sanitizeForExcel(r.SupervisorName),
		r.Status,
		score,
		yesNo(r.IsLate),
		yesNo(r.IsExpired),
		formatTimePtr(r.SentAt),
		formatTimePtr(r.SubmittedAt),
	}
}

// exportCSV экспортирует попытки в CSV с правильным экранированием спецсимволов
func (h *ExamHandler) exportCSV(c *gin.Context, records []entity.ExamAccess, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

	// BOM для корректного отображения UTF-8 в Excel
	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write(attemptExportHeaders)
	for i := range records {
		writer.Write(attemptExportRow(&records[i]))
	}
}

// exportXLSX экспортирует попытки в Excel с использованием StreamWriter
func (h *ExamHandler) exportXLSX(c *gin.Context, records []entity.ExamAccess, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Attempts"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[ExamHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := make([]interface{}, len(attemptExportHeaders))
	for i, head := range attemptExportHeaders {
		headers[i] = head
	}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[ExamHandler] Ошибка записи заголовков: %v", err)
	}

	for i := range records {
		cells := attemptExportRow(&records[i])
		row := make([]interface{}, len(cells))
		for j, cell := range cells {
			row[j] = cell
		}
		if err := sw.SetRow(fmt.Sprintf("A%d", i+2), row); err != nil {
			log.Printf("[ExamHandler] Ошибка записи строки %d: %v", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[ExamHandler] Ошибка при Flush: %v", err)
	}
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[ExamHandler] Ошибка записи Excel в response: %v", err)
	}
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func pagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

// handleExamError обрабатывает ошибки сервисов экзаменов
func (h *ExamHandler) handleExamError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrValidation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	} else {
		log.Printf("ERROR: Internal server error in ExamHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
