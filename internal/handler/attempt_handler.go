package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/domain/repository"
	"github.com/yourusername/exam-portal-api/internal/handler/dto"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
	"github.com/yourusername/exam-portal-api/internal/service"
)

// AttemptHandler обрабатывает публичные (студенческие) запросы
type AttemptHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
}

// NewAttemptHandler создает новый обработчик попыток
func NewAttemptHandler(attemptService *service.AttemptService, examService *service.ExamService) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		examService:    examService,
	}
}

// AvailableExams возвращает активные экзамены для выбора студентом
// GET /api/exams
func (h *AttemptHandler) AvailableExams(c *gin.Context) {
	exams, err := h.examService.ListActiveExams()
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	items := make([]*dto.ExamResponse, 0, len(exams))
	for i := range exams {
		items = append(items, dto.NewExamWithCountResponse(&exams[i]))
	}

	c.JSON(http.StatusOK, gin.H{"exams": items})
}

// Redeem активирует код доступа и запускает таймер экзамена
// POST /api/attempts/redeem
func (h *AttemptHandler) Redeem(c *gin.Context) {
	var req dto.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := repository.StudentIdentity{
		StudentName:     req.StudentName,
		StudentEmail:    req.StudentEmail,
		StudentPhone:    req.StudentPhone,
		SupervisorName:  req.SupervisorName,
		SupervisorEmail: req.SupervisorEmail,
	}

	access, err := h.attemptService.Redeem(req.AccessCode, req.CompanyName, req.ExamID, identity)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAttemptResponse(access))
}

// Content возвращает контент экзамена и оставшееся время для идущей попытки
// GET /api/attempts/:code/content
func (h *AttemptHandler) Content(c *gin.Context) {
	code := c.Param("code")

	content, err := h.attemptService.Content(code)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewExamContentResponse(content))
}

// Submit завершает попытку и возвращает отчёт
// POST /api/attempts/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.attemptService.Submit(req.AccessCode, req.ExamID, entity.AnswerMap(req.Answers))
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// Result возвращает отчёт завершённой попытки
// GET /api/attempts/:code/result
func (h *AttemptHandler) Result(c *gin.Context) {
	code := c.Param("code")

	report, access, err := h.attemptService.Result(code)
	if err != nil {
		h.handleAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt": dto.NewAttemptResponse(access),
		"report":  report,
	})
}

// handleAttemptError транслирует ошибки жизненного цикла попытки в HTTP.
// error_type позволяет клиенту различать исходы без разбора текста.
func (h *AttemptHandler) handleAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid access code", "error_type": "invalid_code"})
	case errors.Is(err, service.ErrCompanyMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access code mismatch", "error_type": "company_mismatch"})
	case errors.Is(err, service.ErrAttemptCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": "This exam has already been completed", "error_type": "already_completed", "is_completed": true})
	case errors.Is(err, service.ErrAttemptAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": "This code has already been activated", "error_type": "already_active"})
	case errors.Is(err, service.ErrAttemptNotStarted):
		c.JSON(http.StatusConflict, gin.H{"error": "Attempt has not been started", "error_type": "not_started"})
	case errors.Is(err, service.ErrNoExamSelected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No question bank selected", "error_type": "no_exam_selected"})
	case errors.Is(err, service.ErrSubmissionConflict):
		// Конкурирующая сдача победила, клиенту нужно запросить результат
		c.JSON(http.StatusConflict, gin.H{"error": "Attempt was already submitted", "error_type": "submission_conflict", "is_completed": true})
	case errors.Is(err, service.ErrDeadlineExceeded):
		c.JSON(http.StatusGone, gin.H{"error": "Submission deadline exceeded", "error_type": "deadline_exceeded"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.Printf("ERROR: Internal server error in AttemptHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
