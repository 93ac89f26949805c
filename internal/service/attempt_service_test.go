package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/domain/repository"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
)

// ============================================================================
// Общие моки для тестов сервисов
// Реализуют repository.AccessRepository, ExamRepository, QuestionRepository,
// CacheRepository и используются также в access_service_test.go и
// exam_service_test.go
// ============================================================================

// helper для создания pointer
func uintPtr(v uint) *uint { return &v }

// MockAccessRepository реализует repository.AccessRepository
type MockAccessRepository struct {
	mock.Mock
}

func (m *MockAccessRepository) Create(record *entity.ExamAccess) error {
	args := m.Called(record)
	return args.Error(0)
}

func (m *MockAccessRepository) GetByID(id uint) (*entity.ExamAccess, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExamAccess), args.Error(1)
}

func (m *MockAccessRepository) GetByCode(code string) (*entity.ExamAccess, error) {
	args := m.Called(code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ExamAccess), args.Error(1)
}

func (m *MockAccessRepository) MarkStarted(id uint, examID uint, identity repository.StudentIdentity, sentAt time.Time) error {
	args := m.Called(id, examID, identity, sentAt)
	return args.Error(0)
}

func (m *MockAccessRepository) Complete(id uint, examID uint, score int, answers entity.AnswerMap, submittedAt time.Time, isLate, isExpired bool) error {
	args := m.Called(id, examID, score, answers, submittedAt, isLate, isExpired)
	return args.Error(0)
}

func (m *MockAccessRepository) ResetCode(id uint, newCode string) error {
	args := m.Called(id, newCode)
	return args.Error(0)
}

func (m *MockAccessRepository) MarkDelivered(id uint, deliveredAt time.Time) error {
	args := m.Called(id, deliveredAt)
	return args.Error(0)
}

func (m *MockAccessRepository) ListByBatch(batchID string) ([]entity.ExamAccess, error) {
	args := m.Called(batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ExamAccess), args.Error(1)
}

func (m *MockAccessRepository) DeleteBatch(batchID string) (int64, error) {
	args := m.Called(batchID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccessRepository) UpdateBatchCompany(batchID string, companyName string) (int64, error) {
	args := m.Called(batchID, companyName)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccessRepository) GroupByBatch() ([]repository.BatchSummary, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.BatchSummary), args.Error(1)
}

func (m *MockAccessRepository) CountByStatus(status string) (int64, error) {
	args := m.Called(status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAccessRepository) ListByExam(examID uint, limit, offset int) ([]entity.ExamAccess, int64, error) {
	args := m.Called(examID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.ExamAccess), args.Get(1).(int64), args.Error(2)
}

func (m *MockAccessRepository) FindExpiredStarted(grace time.Duration, now time.Time) ([]entity.ExamAccess, error) {
	args := m.Called(grace, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.ExamAccess), args.Error(1)
}

// MockExamRepository реализует repository.ExamRepository
type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) Create(exam *entity.Exam) error {
	args := m.Called(exam)
	return args.Error(0)
}

func (m *MockExamRepository) GetByID(id uint) (*entity.Exam, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Exam), args.Error(1)
}

func (m *MockExamRepository) GetWithQuestions(id uint) (*entity.Exam, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Exam), args.Error(1)
}

func (m *MockExamRepository) Update(exam *entity.Exam) error {
	args := m.Called(exam)
	return args.Error(0)
}

func (m *MockExamRepository) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockExamRepository) ListActive() ([]entity.Exam, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Exam), args.Error(1)
}

func (m *MockExamRepository) List(limit, offset int) ([]entity.Exam, int64, error) {
	args := m.Called(limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.Exam), args.Get(1).(int64), args.Error(2)
}

// MockQuestionRepository реализует repository.QuestionRepository
type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) Create(question *entity.Question) error {
	args := m.Called(question)
	return args.Error(0)
}

func (m *MockQuestionRepository) GetByID(id uint) (*entity.Question, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Question), args.Error(1)
}

func (m *MockQuestionRepository) GetByExamID(examID uint) ([]entity.Question, error) {
	args := m.Called(examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Question), args.Error(1)
}

func (m *MockQuestionRepository) Update(question *entity.Question) error {
	args := m.Called(question)
	return args.Error(0)
}

func (m *MockQuestionRepository) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockQuestionRepository) CountByExamID(examID uint) (int64, error) {
	args := m.Called(examID)
	return args.Get(0).(int64), args.Error(1)
}

// ============================================================================
// Хелперы для AttemptService
// ============================================================================

func newTestAttemptService(accessRepo *MockAccessRepository, examRepo *MockExamRepository) *AttemptService {
	return NewAttemptService(accessRepo, examRepo, nil, nil, nil, AttemptConfig{
		GracePeriod:             time.Minute,
		SweepGrace:              5 * time.Minute,
		DefaultPassThresholdPct: 50,
	})
}

func testIdentity() repository.StudentIdentity {
	return repository.StudentIdentity{
		StudentName:     "Ivan Petrov",
		StudentEmail:    "ivan@example.com",
		SupervisorEmail: "boss@example.com",
	}
}

func testExamWithQuestions() *entity.Exam {
	return &entity.Exam{
		ID:               7,
		Title:            "Safety Basics",
		DurationMin:      30,
		IsActive:         true,
		PassThresholdPct: 50,
		Questions: []entity.Question{
			{ID: 1, ExamID: 7, Text: "Q1", Options: entity.StringArray{"A", "B", "C"}, CorrectOption: 0, Marks: 1},
			{ID: 2, ExamID: 7, Text: "Q2", Options: entity.StringArray{"A", "B", "C"}, CorrectOption: 1, Marks: 2},
			{ID: 3, ExamID: 7, Text: "Q3", Options: entity.StringArray{"A", "B"}, CorrectOption: 1, Marks: 1},
		},
	}
}

// ============================================================================
// Redeem: активация кода доступа
// ============================================================================

func TestAttemptService_Redeem_Success(t *testing.T) {
	// Arrange
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{
		ID:          10,
		AccessCode:  "ACM123456",
		CompanyName: "Acme Corp",
		ExamID:      uintPtr(7),
		Status:      entity.AccessStatusActive,
	}
	exam := &entity.Exam{ID: 7, Title: "Safety Basics", IsActive: true}

	sentAt := time.Now()
	started := &entity.ExamAccess{
		ID:          10,
		AccessCode:  "ACM123456",
		CompanyName: "Acme Corp",
		ExamID:      uintPtr(7),
		Status:      entity.AccessStatusStarted,
		SentAt:      &sentAt,
		StudentName: "Ivan Petrov",
	}

	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetByID", uint(7)).Return(exam, nil)
	accessRepo.On("MarkStarted", uint(10), uint(7), testIdentity(), mock.AnythingOfType("time.Time")).Return(nil)
	accessRepo.On("GetByID", uint(10)).Return(started, nil)

	// Act
	result, err := svc.Redeem("ACM123456", "acme corp", nil, testIdentity())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, entity.AccessStatusStarted, result.Status)
	assert.NotNil(t, result.SentAt, "SentAt должен быть зафиксирован как старт таймера")
	accessRepo.AssertExpectations(t)
	examRepo.AssertExpectations(t)
}

func TestAttemptService_Redeem_InvalidCode(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	accessRepo.On("GetByCode", "NOPE").Return(nil, apperrors.ErrNotFound)

	_, err := svc.Redeem("NOPE", "Acme", nil, testIdentity())

	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestAttemptService_Redeem_CompanyMismatch(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{
		ID:          10,
		CompanyName: "Acme Corp",
		ExamID:      uintPtr(7),
		Status:      entity.AccessStatusActive,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)

	_, err := svc.Redeem("ACM123456", "Other Corp", nil, testIdentity())

	assert.ErrorIs(t, err, ErrCompanyMismatch)
	accessRepo.AssertNotCalled(t, "MarkStarted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAttemptService_Redeem_AlreadyCompleted(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{ID: 10, Status: entity.AccessStatusCompleted}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)

	_, err := svc.Redeem("ACM123456", "Acme", nil, testIdentity())

	assert.ErrorIs(t, err, ErrAttemptCompleted)
}

func TestAttemptService_Redeem_AlreadyStarted(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{ID: 10, Status: entity.AccessStatusStarted}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)

	_, err := svc.Redeem("ACM123456", "Acme", nil, testIdentity())

	assert.ErrorIs(t, err, ErrAttemptAlreadyActive)
}

func TestAttemptService_Redeem_NoExamSelected(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	// Код без привязанного экзамена и без экзамена в запросе
	access := &entity.ExamAccess{
		ID:          10,
		CompanyName: "Acme Corp",
		Status:      entity.AccessStatusActive,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)

	_, err := svc.Redeem("ACM123456", "Acme Corp", nil, testIdentity())

	assert.ErrorIs(t, err, ErrNoExamSelected)
}

func TestAttemptService_Redeem_ExamFromRequestOverridesBound(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{
		ID:          10,
		CompanyName: "Acme Corp",
		ExamID:      uintPtr(7),
		Status:      entity.AccessStatusActive,
	}
	exam := &entity.Exam{ID: 9, IsActive: true}
	started := &entity.ExamAccess{ID: 10, Status: entity.AccessStatusStarted, ExamID: uintPtr(9)}

	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetByID", uint(9)).Return(exam, nil)
	accessRepo.On("MarkStarted", uint(10), uint(9), mock.Anything, mock.Anything).Return(nil)
	accessRepo.On("GetByID", uint(10)).Return(started, nil)

	result, err := svc.Redeem("ACM123456", "Acme Corp", uintPtr(9), testIdentity())

	require.NoError(t, err)
	assert.Equal(t, uint(9), *result.ExamID, "Экзамен из запроса имеет приоритет над привязанным к коду")
}

func TestAttemptService_Redeem_InactiveExam(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{
		ID:          10,
		CompanyName: "Acme Corp",
		ExamID:      uintPtr(7),
		Status:      entity.AccessStatusActive,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetByID", uint(7)).Return(&entity.Exam{ID: 7, IsActive: false}, nil)

	_, err := svc.Redeem("ACM123456", "Acme Corp", nil, testIdentity())

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAttemptService_Redeem_MissingStudentName(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{
		ID:          10,
		CompanyName: "Acme Corp",
		ExamID:      uintPtr(7),
		Status:      entity.AccessStatusActive,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetByID", uint(7)).Return(&entity.Exam{ID: 7, IsActive: true}, nil)

	_, err := svc.Redeem("ACM123456", "Acme Corp", nil, repository.StudentIdentity{})

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAttemptService_Redeem_ConcurrentActivation(t *testing.T) {
	// Конкурентная активация: условный UPDATE вернул конфликт
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{
		ID:          10,
		CompanyName: "Acme Corp",
		ExamID:      uintPtr(7),
		Status:      entity.AccessStatusActive,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetByID", uint(7)).Return(&entity.Exam{ID: 7, IsActive: true}, nil)
	accessRepo.On("MarkStarted", uint(10), uint(7), mock.Anything, mock.Anything).Return(apperrors.ErrConflict)

	_, err := svc.Redeem("ACM123456", "Acme Corp", nil, testIdentity())

	assert.ErrorIs(t, err, ErrAttemptAlreadyActive)
}

// ============================================================================
// Content: выдача контента экзамена идущей попытке
// ============================================================================

func TestAttemptService_Content_Success(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	sentAt := time.Now().Add(-10 * time.Minute)
	access := &entity.ExamAccess{
		ID:     10,
		ExamID: uintPtr(7),
		Status: entity.AccessStatusStarted,
		SentAt: &sentAt,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(testExamWithQuestions(), nil)

	content, err := svc.Content("ACM123456")

	require.NoError(t, err)
	assert.Equal(t, uint(7), content.Exam.ID)
	// Прошло 10 минут из 30: остаток около 20 минут
	assert.InDelta(t, 20*60, content.RemainingSeconds, 5)
}

func TestAttemptService_Content_ExpiredButOpen(t *testing.T) {
	// Дедлайн прошёл, но попытка ещё не закрыта: контент выдаётся с
	// нулевым остатком времени
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	sentAt := time.Now().Add(-2 * time.Hour)
	access := &entity.ExamAccess{
		ID:     10,
		ExamID: uintPtr(7),
		Status: entity.AccessStatusStarted,
		SentAt: &sentAt,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(testExamWithQuestions(), nil)

	content, err := svc.Content("ACM123456")

	require.NoError(t, err)
	assert.Equal(t, 0, content.RemainingSeconds)
}

func TestAttemptService_Content_NotStarted(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{ID: 10, Status: entity.AccessStatusActive}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)

	_, err := svc.Content("ACM123456")

	assert.ErrorIs(t, err, ErrAttemptNotStarted)
}

func TestAttemptService_Content_Completed(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{ID: 10, Status: entity.AccessStatusCompleted}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)

	_, err := svc.Content("ACM123456")

	assert.ErrorIs(t, err, ErrAttemptCompleted)
}

// ============================================================================
// Submit: завершение попытки и подсчёт балла
// ============================================================================

func TestAttemptService_Submit_Success(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	sentAt := time.Now().Add(-10 * time.Minute)
	access := &entity.ExamAccess{
		ID:     10,
		ExamID: uintPtr(7),
		Status: entity.AccessStatusStarted,
		SentAt: &sentAt,
	}
	exam := testExamWithQuestions()

	// Q1 верно (1 балл), Q2 верно (2 балла), Q3 неверно: итого 3 из 4
	answers := entity.AnswerMap{1: 0, 2: 1, 3: 0}
	submittedAt := time.Now()
	completed := &entity.ExamAccess{
		ID:          10,
		ExamID:      uintPtr(7),
		Status:      entity.AccessStatusCompleted,
		SentAt:      &sentAt,
		SubmittedAt: &submittedAt,
		Score:       intPtr(3),
		Answers:     answers,
	}

	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(exam, nil)
	accessRepo.On("Complete", uint(10), uint(7), 3, answers, mock.Anything, false, false).Return(nil)
	accessRepo.On("GetByID", uint(10)).Return(completed, nil)

	report, err := svc.Submit("ACM123456", nil, answers)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Score)
	assert.Equal(t, 4, report.TotalMarks)
	assert.Equal(t, 75, report.Percentage)
	assert.True(t, report.Passed)
	assert.Equal(t, 2, report.CorrectCount)
	assert.Equal(t, 1, report.WrongCount)
	assert.Equal(t, 0, report.SkippedCount)
	assert.False(t, report.IsLate)
	accessRepo.AssertExpectations(t)
}

func TestAttemptService_Submit_SanitizesAnswers(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	sentAt := time.Now().Add(-5 * time.Minute)
	access := &entity.ExamAccess{
		ID:     10,
		ExamID: uintPtr(7),
		Status: entity.AccessStatusStarted,
		SentAt: &sentAt,
	}
	exam := testExamWithQuestions()

	// Ответ на чужой вопрос (99) и индекс вне диапазона (Q3 имеет 2 опции)
	// должны быть отброшены до записи
	dirty := entity.AnswerMap{1: 0, 99: 1, 3: 5}
	clean := entity.AnswerMap{1: 0}

	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(exam, nil)
	accessRepo.On("Complete", uint(10), uint(7), 1, clean, mock.Anything, false, false).Return(nil)
	accessRepo.On("GetByID", uint(10)).Return(&entity.ExamAccess{
		ID: 10, ExamID: uintPtr(7), Status: entity.AccessStatusCompleted, Answers: clean,
	}, nil)

	report, err := svc.Submit("ACM123456", nil, dirty)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Score)
	assert.Equal(t, 2, report.SkippedCount, "Отброшенные ответы считаются пропущенными")
	accessRepo.AssertExpectations(t)
}

func TestAttemptService_Submit_LateWithinGrace(t *testing.T) {
	// Сдача после дедлайна, но внутри grace-периода: принимается с is_late
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	sentAt := time.Now().Add(-30*time.Minute - 30*time.Second)
	access := &entity.ExamAccess{
		ID:     10,
		ExamID: uintPtr(7),
		Status: entity.AccessStatusStarted,
		SentAt: &sentAt,
	}
	exam := testExamWithQuestions()
	answers := entity.AnswerMap{1: 0}

	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(exam, nil)
	accessRepo.On("Complete", uint(10), uint(7), 1, answers, mock.Anything, true, false).Return(nil)
	accessRepo.On("GetByID", uint(10)).Return(&entity.ExamAccess{
		ID: 10, ExamID: uintPtr(7), Status: entity.AccessStatusCompleted, Answers: answers, IsLate: true,
	}, nil)

	report, err := svc.Submit("ACM123456", nil, answers)

	require.NoError(t, err)
	assert.True(t, report.IsLate)
	accessRepo.AssertExpectations(t)
}

func TestAttemptService_Submit_PastGraceRejected(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	// Дедлайн 30 минут + grace 1 минута давно прошли
	sentAt := time.Now().Add(-2 * time.Hour)
	access := &entity.ExamAccess{
		ID:     10,
		ExamID: uintPtr(7),
		Status: entity.AccessStatusStarted,
		SentAt: &sentAt,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(testExamWithQuestions(), nil)

	_, err := svc.Submit("ACM123456", nil, entity.AnswerMap{1: 0})

	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	accessRepo.AssertNotCalled(t, "Complete",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAttemptService_Submit_ConcurrentSubmission(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	sentAt := time.Now().Add(-5 * time.Minute)
	access := &entity.ExamAccess{
		ID:     10,
		ExamID: uintPtr(7),
		Status: entity.AccessStatusStarted,
		SentAt: &sentAt,
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(testExamWithQuestions(), nil)
	accessRepo.On("Complete",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.ErrConflict)

	_, err := svc.Submit("ACM123456", nil, entity.AnswerMap{1: 0})

	assert.ErrorIs(t, err, ErrSubmissionConflict)
}

func TestAttemptService_Submit_AlreadyCompleted(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{ID: 10, Status: entity.AccessStatusCompleted}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)

	_, err := svc.Submit("ACM123456", nil, entity.AnswerMap{})

	assert.ErrorIs(t, err, ErrAttemptCompleted)
}

// ============================================================================
// Result / Report: пересчёт отчёта из сохранённых ответов
// ============================================================================

func TestAttemptService_Result_Success(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{
		ID:      10,
		ExamID:  uintPtr(7),
		Status:  entity.AccessStatusCompleted,
		Answers: entity.AnswerMap{1: 0, 2: 0},
	}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(testExamWithQuestions(), nil)

	report, returned, err := svc.Result("ACM123456")

	require.NoError(t, err)
	assert.Equal(t, access, returned)
	assert.Equal(t, 1, report.Score, "Q1 верно, Q2 неверно, Q3 пропущен")
	assert.Equal(t, 1, report.SkippedCount)
	assert.False(t, report.Passed, "1 из 4 при пороге 50% не проходит")
}

func TestAttemptService_Result_NotCompleted(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{ID: 10, Status: entity.AccessStatusStarted}
	accessRepo.On("GetByCode", "ACM123456").Return(access, nil)

	_, _, err := svc.Result("ACM123456")

	assert.ErrorIs(t, err, ErrAttemptNotStarted)
}

func TestAttemptService_Report_ByID(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	access := &entity.ExamAccess{
		ID:      10,
		ExamID:  uintPtr(7),
		Status:  entity.AccessStatusCompleted,
		Answers: entity.AnswerMap{1: 0, 2: 1, 3: 1},
	}
	accessRepo.On("GetByID", uint(10)).Return(access, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(testExamWithQuestions(), nil)

	report, _, err := svc.Report(10)

	require.NoError(t, err)
	assert.Equal(t, 4, report.Score)
	assert.Equal(t, 100, report.Percentage)
	assert.True(t, report.Passed)
	assert.Len(t, report.Breakdown, 3)
}

// ============================================================================
// ExpireStale: принудительное завершение брошенных попыток
// ============================================================================

func TestAttemptService_ExpireStale_ClosesAbandoned(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	sentAt := time.Now().Add(-3 * time.Hour)
	stale := []entity.ExamAccess{
		{ID: 10, ExamID: uintPtr(7), Status: entity.AccessStatusStarted, SentAt: &sentAt},
	}
	closed := &entity.ExamAccess{
		ID: 10, ExamID: uintPtr(7), Status: entity.AccessStatusCompleted, IsLate: true, IsExpired: true,
	}

	accessRepo.On("FindExpiredStarted", 5*time.Minute, mock.Anything).Return(stale, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(testExamWithQuestions(), nil)
	accessRepo.On("Complete", uint(10), uint(7), 0, entity.AnswerMap(nil), mock.Anything, true, true).Return(nil)
	accessRepo.On("GetByID", uint(10)).Return(closed, nil)

	count, err := svc.ExpireStale(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	accessRepo.AssertExpectations(t)
}

func TestAttemptService_ExpireStale_SkipsConcurrentlyCompleted(t *testing.T) {
	// Студент успел сдать между выборкой и закрытием: конфликт пропускается
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	sentAt := time.Now().Add(-3 * time.Hour)
	stale := []entity.ExamAccess{
		{ID: 10, ExamID: uintPtr(7), Status: entity.AccessStatusStarted, SentAt: &sentAt},
	}

	accessRepo.On("FindExpiredStarted", 5*time.Minute, mock.Anything).Return(stale, nil)
	examRepo.On("GetWithQuestions", uint(7)).Return(testExamWithQuestions(), nil)
	accessRepo.On("Complete",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.ErrConflict)

	count, err := svc.ExpireStale(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, count)
	accessRepo.AssertNotCalled(t, "GetByID", mock.Anything)
}

func TestAttemptService_ExpireStale_Empty(t *testing.T) {
	accessRepo := new(MockAccessRepository)
	examRepo := new(MockExamRepository)
	svc := newTestAttemptService(accessRepo, examRepo)

	accessRepo.On("FindExpiredStarted", mock.Anything, mock.Anything).Return([]entity.ExamAccess{}, nil)

	count, err := svc.ExpireStale(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func intPtr(v int) *int { return &v }
