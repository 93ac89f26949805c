package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
)

// ExamRepo реализует repository.ExamRepository
type ExamRepo struct {
	db *gorm.DB
}

// NewExamRepo создает новый репозиторий экзаменов
func NewExamRepo(db *gorm.DB) *ExamRepo {
	return &ExamRepo{db: db}
}

// Create создает новый экзамен
func (r *ExamRepo) Create(exam *entity.Exam) error {
	return r.db.Create(exam).Error
}

// GetByID возвращает экзамен по ID
func (r *ExamRepo) GetByID(id uint) (*entity.Exam, error) {
	var exam entity.Exam
	err := r.db.First(&exam, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &exam, nil
}

// GetWithQuestions возвращает экзамен вместе с вопросами в исходном порядке
func (r *ExamRepo) GetWithQuestions(id uint) (*entity.Exam, error) {
	var exam entity.Exam
	err := r.db.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("questions.id ASC")
	}).First(&exam, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &exam, nil
}

// Update обновляет информацию об экзамене
func (r *ExamRepo) Update(exam *entity.Exam) error {
	return r.db.Save(exam).Error
}

// Delete удаляет экзамен вместе с вопросами в одной транзакции
func (r *ExamRepo) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", id).Delete(&entity.Question{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&entity.Exam{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}

// ListActive возвращает все активные экзамены
func (r *ExamRepo) ListActive() ([]entity.Exam, error) {
	var exams []entity.Exam
	err := r.db.Where("is_active = true").Order("title").Find(&exams).Error
	return exams, err
}

// List возвращает список экзаменов с пагинацией
func (r *ExamRepo) List(limit, offset int) ([]entity.Exam, int64, error) {
	var exams []entity.Exam
	var total int64

	if err := r.db.Model(&entity.Exam{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&exams).Error
	if err != nil {
		return nil, 0, err
	}

	return exams, total, nil
}

// isUniqueViolation проверяет Postgres unique violation (23505) для pgconn и lib/pq драйверов
func isUniqueViolation(err error) bool {
	// pgx/v5 driver (pgconn.PgError)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// lib/pq driver
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
