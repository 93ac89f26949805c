package repository

import (
	"time"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
)

// StudentIdentity содержит данные студента и супервайзера, фиксируемые
// один раз при старте попытки.
type StudentIdentity struct {
	StudentName     string
	StudentEmail    string
	StudentPhone    string
	SupervisorName  string
	SupervisorEmail string
}

// BatchSummary представляет агрегат по партии кодов для дашборда
type BatchSummary struct {
	BatchID     string    `json:"batch_id"`
	CompanyName string    `json:"company_name"`
	CreatedAt   time.Time `json:"created_at"`
	Count       int64     `json:"count"`
}

// AccessRepository определяет методы для работы с кодами доступа.
//
// Оба перехода жизненного цикла (MarkStarted, Complete) выполняются как
// условные UPDATE по текущему статусу: при нулевом RowsAffected репозиторий
// возвращает apperrors.ErrConflict, что закрывает гонку check-then-act
// двух конкурентных вызовов на одном коде.
type AccessRepository interface {
	Create(record *entity.ExamAccess) error
	GetByID(id uint) (*entity.ExamAccess, error)
	GetByCode(code string) (*entity.ExamAccess, error)

	// MarkStarted переводит ACTIVE -> STARTED, привязывает экзамен и
	// фиксирует личность студента и момент старта таймера.
	MarkStarted(id uint, examID uint, identity StudentIdentity, sentAt time.Time) error

	// Complete переводит попытку в COMPLETED и записывает результат.
	// Выполняется только если текущий статус не COMPLETED.
	Complete(id uint, examID uint, score int, answers entity.AnswerMap, submittedAt time.Time, isLate, isExpired bool) error

	// ResetCode возвращает запись в состояние ACTIVE с новым кодом,
	// очищая все поля попытки.
	ResetCode(id uint, newCode string) error
	MarkDelivered(id uint, deliveredAt time.Time) error

	ListByBatch(batchID string) ([]entity.ExamAccess, error)
	DeleteBatch(batchID string) (int64, error)
	UpdateBatchCompany(batchID string, companyName string) (int64, error)
	GroupByBatch() ([]BatchSummary, error)
	CountByStatus(status string) (int64, error)

	// ListByExam возвращает попытки по экзамену для просмотра ответов
	ListByExam(examID uint, limit, offset int) ([]entity.ExamAccess, int64, error)

	// FindExpiredStarted возвращает STARTED-попытки, у которых дедлайн
	// (sent_at + длительность экзамена + grace) уже прошёл к моменту now.
	FindExpiredStarted(grace time.Duration, now time.Time) ([]entity.ExamAccess, error)
}
