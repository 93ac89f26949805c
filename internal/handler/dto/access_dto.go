package dto

import (
	"github.com/yourusername/exam-portal-api/internal/domain/entity"
)

// GenerateBatchRequest - запрос на генерацию партии кодов
type GenerateBatchRequest struct {
	CompanyName string `json:"company_name" binding:"required,min=1,max=100"`
	Count       int    `json:"count" binding:"required,min=1,max=500"`
	ExamID      *uint  `json:"exam_id,omitempty"`
}

// RenameBatchRequest - запрос на смену компании у партии
type RenameBatchRequest struct {
	CompanyName string `json:"company_name" binding:"required,min=1,max=100"`
}

// BatchCodesResponse - партия с её кодами
type BatchCodesResponse struct {
	BatchID string             `json:"batch_id"`
	Codes   []*AttemptResponse `json:"codes"`
}

// NewBatchCodesResponse создает DTO партии кодов
func NewBatchCodesResponse(batchID string, records []entity.ExamAccess) *BatchCodesResponse {
	return &BatchCodesResponse{
		BatchID: batchID,
		Codes:   NewAttemptResponses(records),
	}
}
