package dto

import (
	"time"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
)

// RedeemRequest - запрос на активацию кода доступа
type RedeemRequest struct {
	AccessCode      string `json:"access_code" binding:"required,min=4,max=20"`
	CompanyName     string `json:"company_name" binding:"required,min=1,max=100"`
	ExamID          *uint  `json:"exam_id,omitempty"`
	StudentName     string `json:"student_name" binding:"required,min=1,max=100"`
	StudentEmail    string `json:"student_email" binding:"required,email,max=100"`
	StudentPhone    string `json:"student_phone" binding:"max=30"`
	SupervisorName  string `json:"supervisor_name" binding:"max=100"`
	SupervisorEmail string `json:"supervisor_email" binding:"omitempty,email,max=100"`
}

// SubmitRequest - запрос на сдачу экзамена
type SubmitRequest struct {
	AccessCode string       `json:"access_code" binding:"required,min=4,max=20"`
	ExamID     *uint        `json:"exam_id,omitempty"`
	Answers    map[uint]int `json:"answers" binding:"required"`
}

// AttemptResponse представляет попытку для ответа клиенту.
// Ответы студента и балл отдаются только админским ручкам.
type AttemptResponse struct {
	ID              uint       `json:"id"`
	AccessCode      string     `json:"access_code"`
	CompanyName     string     `json:"company_name"`
	BatchID         *string    `json:"batch_id,omitempty"`
	ExamID          *uint      `json:"exam_id,omitempty"`
	Status          string     `json:"status"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	Score           *int       `json:"score,omitempty"`
	IsLate          bool       `json:"is_late"`
	IsExpired       bool       `json:"is_expired"`
	StudentName     string     `json:"student_name,omitempty"`
	StudentEmail    string     `json:"student_email,omitempty"`
	StudentPhone    string     `json:"student_phone,omitempty"`
	SupervisorName  string     `json:"supervisor_name,omitempty"`
	SupervisorEmail string     `json:"supervisor_email,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewAttemptResponse создает DTO попытки
func NewAttemptResponse(a *entity.ExamAccess) *AttemptResponse {
	return &AttemptResponse{
		ID:              a.ID,
		AccessCode:      a.AccessCode,
		CompanyName:     a.CompanyName,
		BatchID:         a.BatchID,
		ExamID:          a.ExamID,
		Status:          a.Status,
		SentAt:          a.SentAt,
		SubmittedAt:     a.SubmittedAt,
		DeliveredAt:     a.DeliveredAt,
		Score:           a.Score,
		IsLate:          a.IsLate,
		IsExpired:       a.IsExpired,
		StudentName:     a.StudentName,
		StudentEmail:    a.StudentEmail,
		StudentPhone:    a.StudentPhone,
		SupervisorName:  a.SupervisorName,
		SupervisorEmail: a.SupervisorEmail,
		CreatedAt:       a.CreatedAt,
	}
}

// NewAttemptResponses создает список DTO попыток
func NewAttemptResponses(records []entity.ExamAccess) []*AttemptResponse {
	out := make([]*AttemptResponse, 0, len(records))
	for i := range records {
		out = append(out, NewAttemptResponse(&records[i]))
	}
	return out
}
