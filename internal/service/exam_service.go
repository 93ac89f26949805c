package service

import (
	"fmt"
	"log"
	"strings"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/domain/repository"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
)

// Ограничения на вопрос
const (
	MinOptions = 2
	MaxOptions = 5
)

// ContentInvalidator сбрасывает кеш контента экзамена после изменений
type ContentInvalidator interface {
	InvalidateExamContent(examID uint)
}

// ExamWithCount - экзамен вместе с количеством вопросов для списков
type ExamWithCount struct {
	entity.Exam
	QuestionCount int64 `json:"question_count"`
}

// ExamService предоставляет методы для администрирования банков вопросов
type ExamService struct {
	examRepo     repository.ExamRepository
	questionRepo repository.QuestionRepository
	invalidator  ContentInvalidator
}

// NewExamService создает новый сервис экзаменов
func NewExamService(
	examRepo repository.ExamRepository,
	questionRepo repository.QuestionRepository,
	invalidator ContentInvalidator,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		invalidator:  invalidator,
	}
}

// CreateExam создает новый экзамен
func (s *ExamService) CreateExam(exam *entity.Exam) error {
	if err := validateExam(exam); err != nil {
		return err
	}
	if err := s.examRepo.Create(exam); err != nil {
		return err
	}
	log.Printf("[ExamService] Создан экзамен ID=%d title=%q", exam.ID, exam.Title)
	return nil
}

// GetExam возвращает экзамен по ID
func (s *ExamService) GetExam(id uint) (*entity.Exam, error) {
	return s.examRepo.GetByID(id)
}

// GetExamWithQuestions возвращает экзамен вместе с вопросами
func (s *ExamService) GetExamWithQuestions(id uint) (*entity.Exam, error) {
	return s.examRepo.GetWithQuestions(id)
}

// UpdateExam обновляет экзамен и сбрасывает кеш его контента
func (s *ExamService) UpdateExam(exam *entity.Exam) error {
	if err := validateExam(exam); err != nil {
		return err
	}
	if _, err := s.examRepo.GetByID(exam.ID); err != nil {
		return err
	}
	if err := s.examRepo.Update(exam); err != nil {
		return err
	}
	s.invalidate(exam.ID)
	return nil
}

// DeleteExam удаляет экзамен вместе с его вопросами
func (s *ExamService) DeleteExam(id uint) error {
	if _, err := s.examRepo.GetByID(id); err != nil {
		return err
	}
	if err := s.examRepo.Delete(id); err != nil {
		return err
	}
	s.invalidate(id)
	log.Printf("[ExamService] Удален экзамен ID=%d", id)
	return nil
}

// ListExams возвращает страницу экзаменов с количеством вопросов
func (s *ExamService) ListExams(limit, offset int) ([]ExamWithCount, int64, error) {
	exams, total, err := s.examRepo.List(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	result, err := s.withCounts(exams)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// ListActiveExams возвращает активные экзамены, доступные студентам
func (s *ExamService) ListActiveExams() ([]ExamWithCount, error) {
	exams, err := s.examRepo.ListActive()
	if err != nil {
		return nil, err
	}
	return s.withCounts(exams)
}

// AddQuestion добавляет вопрос в экзамен
func (s *ExamService) AddQuestion(question *entity.Question) error {
	if _, err := s.examRepo.GetByID(question.ExamID); err != nil {
		return err
	}
	if err := validateQuestion(question); err != nil {
		return err
	}
	if question.Marks <= 0 {
		question.Marks = 1
	}
	if err := s.questionRepo.Create(question); err != nil {
		return err
	}
	s.invalidate(question.ExamID)
	return nil
}

// GetQuestions возвращает вопросы экзамена
func (s *ExamService) GetQuestions(examID uint) ([]entity.Question, error) {
	if _, err := s.examRepo.GetByID(examID); err != nil {
		return nil, err
	}
	return s.questionRepo.GetByExamID(examID)
}

// UpdateQuestion обновляет вопрос
func (s *ExamService) UpdateQuestion(question *entity.Question) error {
	existing, err := s.questionRepo.GetByID(question.ID)
	if err != nil {
		return err
	}
	// ExamID вопроса не меняется
	question.ExamID = existing.ExamID
	if err := validateQuestion(question); err != nil {
		return err
	}
	if question.Marks <= 0 {
		question.Marks = 1
	}
	if err := s.questionRepo.Update(question); err != nil {
		return err
	}
	s.invalidate(question.ExamID)
	return nil
}

// DeleteQuestion удаляет вопрос
func (s *ExamService) DeleteQuestion(id uint) error {
	question, err := s.questionRepo.GetByID(id)
	if err != nil {
		return err
	}
	if err := s.questionRepo.Delete(id); err != nil {
		return err
	}
	s.invalidate(question.ExamID)
	return nil
}

func (s *ExamService) withCounts(exams []entity.Exam) ([]ExamWithCount, error) {
	result := make([]ExamWithCount, 0, len(exams))
	for i := range exams {
		count, err := s.questionRepo.CountByExamID(exams[i].ID)
		if err != nil {
			return nil, err
		}
		result = append(result, ExamWithCount{Exam: exams[i], QuestionCount: count})
	}
	return result, nil
}

func (s *ExamService) invalidate(examID uint) {
	if s.invalidator != nil {
		s.invalidator.InvalidateExamContent(examID)
	}
}

func validateExam(exam *entity.Exam) error {
	if strings.TrimSpace(exam.Title) == "" {
		return fmt.Errorf("%w: exam title is required", apperrors.ErrValidation)
	}
	if exam.DurationMin <= 0 {
		return fmt.Errorf("%w: exam duration must be positive", apperrors.ErrValidation)
	}
	if exam.PassThresholdPct < 0 || exam.PassThresholdPct > 100 {
		return fmt.Errorf("%w: pass threshold must be between 0 and 100", apperrors.ErrValidation)
	}
	return nil
}

func validateQuestion(question *entity.Question) error {
	if strings.TrimSpace(question.Text) == "" {
		return fmt.Errorf("%w: question text is required", apperrors.ErrValidation)
	}
	if len(question.Options) < MinOptions || len(question.Options) > MaxOptions {
		return fmt.Errorf("%w: question must have between %d and %d options", apperrors.ErrValidation, MinOptions, MaxOptions)
	}
	for i, opt := range question.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option %d is empty", apperrors.ErrValidation, i)
		}
	}
	if !question.IsValidOption(question.CorrectOption) {
		return fmt.Errorf("%w: correct option index out of range", apperrors.ErrValidation)
	}
	return nil
}
