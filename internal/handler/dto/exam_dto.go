package dto

import (
	"time"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/handler/helper"
	"github.com/yourusername/exam-portal-api/internal/service"
)

// QuestionResponse представляет вопрос в формате для ответа клиенту.
// Правильный вариант сюда никогда не попадает.
type QuestionResponse struct {
	ID        uint                    `json:"id"`
	ExamID    uint                    `json:"exam_id"`
	Text      string                  `json:"text"`
	Options   []helper.QuestionOption `json:"options"`
	Marks     int                     `json:"marks"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// AdminQuestionResponse - вопрос для админки, с правильным вариантом
type AdminQuestionResponse struct {
	QuestionResponse
	CorrectOption int `json:"correct_option"`
}

// ExamResponse представляет экзамен в формате для ответа клиенту
type ExamResponse struct {
	ID               uint               `json:"id"`
	Title            string             `json:"title"`
	DurationMin      int                `json:"duration_min"`
	Language         string             `json:"language"`
	IsActive         bool               `json:"is_active"`
	PassThresholdPct int                `json:"pass_threshold_pct"`
	QuestionCount    int64              `json:"question_count"`
	Questions        []QuestionResponse `json:"questions,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// ExamContentResponse - контент экзамена для идущей попытки
type ExamContentResponse struct {
	Exam             *ExamResponse `json:"exam"`
	RemainingSeconds int           `json:"remaining_seconds"`
}

// NewQuestionResponse создает DTO для вопроса
func NewQuestionResponse(q *entity.Question) QuestionResponse {
	return QuestionResponse{
		ID:        q.ID,
		ExamID:    q.ExamID,
		Text:      q.Text,
		Options:   helper.ConvertOptionsToObjects(q.Options),
		Marks:     q.Marks,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

// NewAdminQuestionResponse создает DTO вопроса для админки
func NewAdminQuestionResponse(q *entity.Question) AdminQuestionResponse {
	return AdminQuestionResponse{
		QuestionResponse: NewQuestionResponse(q),
		CorrectOption:    q.CorrectOption,
	}
}

// NewExamResponse создает DTO для экзамена
func NewExamResponse(exam *entity.Exam, includeQuestions bool) *ExamResponse {
	resp := &ExamResponse{
		ID:               exam.ID,
		Title:            exam.Title,
		DurationMin:      exam.DurationMin,
		Language:         exam.Language,
		IsActive:         exam.IsActive,
		PassThresholdPct: exam.PassThresholdPct,
		QuestionCount:    int64(len(exam.Questions)),
		CreatedAt:        exam.CreatedAt,
		UpdatedAt:        exam.UpdatedAt,
	}
	if includeQuestions {
		resp.Questions = make([]QuestionResponse, 0, len(exam.Questions))
		for i := range exam.Questions {
			resp.Questions = append(resp.Questions, NewQuestionResponse(&exam.Questions[i]))
		}
	}
	return resp
}

// NewExamWithCountResponse создает DTO из агрегата сервиса
func NewExamWithCountResponse(e *service.ExamWithCount) *ExamResponse {
	resp := NewExamResponse(&e.Exam, false)
	resp.QuestionCount = e.QuestionCount
	return resp
}

// NewExamContentResponse создает DTO контента экзамена
func NewExamContentResponse(content *service.ExamContent) *ExamContentResponse {
	return &ExamContentResponse{
		Exam:             NewExamResponse(content.Exam, true),
		RemainingSeconds: content.RemainingSeconds,
	}
}
