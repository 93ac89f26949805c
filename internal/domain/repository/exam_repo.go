package repository

import (
	"github.com/yourusername/exam-portal-api/internal/domain/entity"
)

// ExamRepository определяет методы для работы с экзаменами
type ExamRepository interface {
	Create(exam *entity.Exam) error
	GetByID(id uint) (*entity.Exam, error)
	GetWithQuestions(id uint) (*entity.Exam, error)
	Update(exam *entity.Exam) error
	// Delete удаляет экзамен вместе с его вопросами
	Delete(id uint) error
	ListActive() ([]entity.Exam, error)
	List(limit, offset int) ([]entity.Exam, int64, error)
}

// QuestionRepository определяет методы для работы с вопросами
type QuestionRepository interface {
	Create(question *entity.Question) error
	GetByID(id uint) (*entity.Question, error)
	GetByExamID(examID uint) ([]entity.Question, error)
	Update(question *entity.Question) error
	Delete(id uint) error
	CountByExamID(examID uint) (int64, error)
}
