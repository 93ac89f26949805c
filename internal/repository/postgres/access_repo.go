package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/domain/repository"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
)

// AccessRepo реализует repository.AccessRepository
type AccessRepo struct {
	db *gorm.DB
}

// NewAccessRepo создает новый репозиторий кодов доступа
func NewAccessRepo(db *gorm.DB) *AccessRepo {
	return &AccessRepo{db: db}
}

// Create создает новую запись кода доступа.
// Возвращает apperrors.ErrConflict при коллизии кода (unique violation),
// чтобы генератор мог повторить попытку с новым кодом.
func (r *AccessRepo) Create(record *entity.ExamAccess) error {
	err := r.db.Create(record).Error
	if err != nil && isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	return err
}

// GetByID возвращает запись по ID
func (r *AccessRepo) GetByID(id uint) (*entity.ExamAccess, error) {
	var record entity.ExamAccess
	err := r.db.First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetByCode возвращает запись по коду доступа
func (r *AccessRepo) GetByCode(code string) (*entity.ExamAccess, error) {
	var record entity.ExamAccess
	err := r.db.Where("access_code = ?", code).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// MarkStarted переводит ACTIVE -> STARTED одним условным UPDATE.
// Нулевой RowsAffected означает, что запись уже не в ACTIVE (конкурентная
// активация или повторный вход) — возвращаем ErrConflict без мутации.
func (r *AccessRepo) MarkStarted(id uint, examID uint, identity repository.StudentIdentity, sentAt time.Time) error {
	result := r.db.Model(&entity.ExamAccess{}).
		Where("id = ? AND status = ?", id, entity.AccessStatusActive).
		Updates(map[string]interface{}{
			"status":           entity.AccessStatusStarted,
			"exam_id":          examID,
			"sent_at":          sentAt,
			"student_name":     identity.StudentName,
			"student_email":    identity.StudentEmail,
			"student_phone":    identity.StudentPhone,
			"supervisor_name":  identity.SupervisorName,
			"supervisor_email": identity.SupervisorEmail,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// Complete переводит попытку в COMPLETED одним условным UPDATE.
// Условие status <> COMPLETED закрывает гонку двойного сабмита: из двух
// конкурентных вызовов ровно один запишет score и answers, второй получит
// ErrConflict и увидит уже сохранённый результат.
func (r *AccessRepo) Complete(id uint, examID uint, score int, answers entity.AnswerMap, submittedAt time.Time, isLate, isExpired bool) error {
	result := r.db.Model(&entity.ExamAccess{}).
		Where("id = ? AND status <> ?", id, entity.AccessStatusCompleted).
		Updates(map[string]interface{}{
			"status":       entity.AccessStatusCompleted,
			"exam_id":      examID,
			"score":        score,
			"answers":      answers,
			"submitted_at": submittedAt,
			"is_late":      isLate,
			"is_expired":   isExpired,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// ResetCode возвращает запись в ACTIVE с новым кодом, очищая поля попытки
func (r *AccessRepo) ResetCode(id uint, newCode string) error {
	result := r.db.Model(&entity.ExamAccess{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_code":      newCode,
			"status":           entity.AccessStatusActive,
			"sent_at":          nil,
			"submitted_at":     nil,
			"score":            nil,
			"answers":          nil,
			"is_late":          false,
			"is_expired":       false,
			"student_name":     "",
			"student_email":    "",
			"student_phone":    "",
			"supervisor_name":  "",
			"supervisor_email": "",
		})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return apperrors.ErrConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// MarkDelivered отмечает момент отправки кода компании
func (r *AccessRepo) MarkDelivered(id uint, deliveredAt time.Time) error {
	result := r.db.Model(&entity.ExamAccess{}).
		Where("id = ?", id).
		Update("delivered_at", deliveredAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListByBatch возвращает все коды партии
func (r *AccessRepo) ListByBatch(batchID string) ([]entity.ExamAccess, error) {
	var records []entity.ExamAccess
	err := r.db.Where("batch_id = ?", batchID).
		Order("access_code").
		Find(&records).Error
	return records, err
}

// DeleteBatch удаляет все коды партии, возвращает количество удаленных
func (r *AccessRepo) DeleteBatch(batchID string) (int64, error) {
	result := r.db.Where("batch_id = ?", batchID).Delete(&entity.ExamAccess{})
	return result.RowsAffected, result.Error
}

// UpdateBatchCompany переименовывает компанию для всей партии
func (r *AccessRepo) UpdateBatchCompany(batchID string, companyName string) (int64, error) {
	result := r.db.Model(&entity.ExamAccess{}).
		Where("batch_id = ?", batchID).
		Update("company_name", companyName)
	return result.RowsAffected, result.Error
}

// GroupByBatch возвращает агрегаты по партиям для дашборда,
// отсортированные по дате создания (новые первыми)
func (r *AccessRepo) GroupByBatch() ([]repository.BatchSummary, error) {
	var summaries []repository.BatchSummary
	err := r.db.Model(&entity.ExamAccess{}).
		Select("batch_id, company_name, MIN(created_at) as created_at, COUNT(*) as count").
		Where("batch_id IS NOT NULL").
		Group("batch_id, company_name").
		Order("created_at DESC").
		Scan(&summaries).Error
	return summaries, err
}

// CountByStatus возвращает количество кодов в заданном статусе
func (r *AccessRepo) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&entity.ExamAccess{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// ListByExam возвращает попытки по экзамену с пагинацией (новые первыми)
func (r *AccessRepo) ListByExam(examID uint, limit, offset int) ([]entity.ExamAccess, int64, error) {
	var records []entity.ExamAccess
	var total int64

	query := r.db.Model(&entity.ExamAccess{}).Where("exam_id = ?", examID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// limit <= 0 означает выгрузку без пагинации (экспорт)
	listQuery := query.Order("created_at DESC")
	if limit > 0 {
		listQuery = listQuery.Limit(limit).Offset(offset)
	}
	if err := listQuery.Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// FindExpiredStarted возвращает STARTED-попытки с истекшим дедлайном.
// Дедлайн вычисляется в SQL из длительности конкретного экзамена.
func (r *AccessRepo) FindExpiredStarted(grace time.Duration, now time.Time) ([]entity.ExamAccess, error) {
	var records []entity.ExamAccess
	err := r.db.
		Joins("JOIN exams ON exams.id = exam_access.exam_id").
		Where("exam_access.status = ?", entity.AccessStatusStarted).
		Where("exam_access.sent_at + make_interval(mins => exams.duration_min) + make_interval(secs => ?) < ?",
			grace.Seconds(), now).
		Find(&records).Error
	return records, err
}
