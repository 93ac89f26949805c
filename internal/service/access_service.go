package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/domain/repository"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
)

const (
	// Алфавит для сброшенных кодов: без 0/O, 1/I/L, чтобы код можно было
	// надиктовать по телефону
	resetCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	resetCodeGroups   = 3
	resetCodeGroupLen = 4

	// Максимум попыток перегенерации при коллизии кода
	maxCodeRetries = 5

	// Ограничение размера партии
	maxBatchSize = 500
)

// DashboardStats - сводка для админского дашборда
type DashboardStats struct {
	Batches        []repository.BatchSummary `json:"batches"`
	TotalCodes     int64                     `json:"total_codes"`
	ActiveCodes    int64                     `json:"active_codes"`
	StartedCodes   int64                     `json:"started_codes"`
	CompletedCodes int64                     `json:"completed_codes"`
	Companies      int                       `json:"companies"`
}

// AccessService управляет партиями кодов доступа
type AccessService struct {
	accessRepo repository.AccessRepository
	examRepo   repository.ExamRepository
}

// NewAccessService создает новый сервис кодов доступа
func NewAccessService(accessRepo repository.AccessRepository, examRepo repository.ExamRepository) *AccessService {
	return &AccessService{
		accessRepo: accessRepo,
		examRepo:   examRepo,
	}
}

// GenerateBatch генерирует партию кодов доступа для компании.
// Код: 3-буквенный префикс из названия компании + 6 цифр. Уникальность
// обеспечивает уникальный индекс, при коллизии код перегенерируется.
func (s *AccessService) GenerateBatch(companyName string, count int, examID *uint) (string, []entity.ExamAccess, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return "", nil, fmt.Errorf("%w: company name is required", apperrors.ErrValidation)
	}
	if count <= 0 || count > maxBatchSize {
		return "", nil, fmt.Errorf("%w: batch size must be between 1 and %d", apperrors.ErrValidation, maxBatchSize)
	}
	if examID != nil {
		if _, err := s.examRepo.GetByID(*examID); err != nil {
			return "", nil, err
		}
	}

	batchID := uuid.NewString()
	prefix := companyPrefix(companyName)
	created := make([]entity.ExamAccess, 0, count)

	for i := 0; i < count; i++ {
		record, err := s.createWithRetry(func() *entity.ExamAccess {
			return &entity.ExamAccess{
				AccessCode:  prefix + randomDigits(6),
				CompanyName: companyName,
				BatchID:     &batchID,
				ExamID:      examID,
				Status:      entity.AccessStatusActive,
			}
		})
		if err != nil {
			return "", nil, fmt.Errorf("failed to generate code %d of %d: %w", i+1, count, err)
		}
		created = append(created, *record)
	}

	log.Printf("[AccessService] Сгенерирована партия %s: компания=%q кодов=%d", batchID, companyName, count)
	return batchID, created, nil
}

// ResetCode возвращает запись в ACTIVE с новым кодом, очищая попытку.
// Новый код берётся из алфавита без неоднозначных символов и группируется
// дефисами по 4 символа.
func (s *AccessService) ResetCode(id uint) (*entity.ExamAccess, error) {
	if _, err := s.accessRepo.GetByID(id); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		newCode := randomResetCode()
		err := s.accessRepo.ResetCode(id, newCode)
		if err == nil {
			log.Printf("[AccessService] Код ID=%d сброшен", id)
			return s.accessRepo.GetByID(id)
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to reset code after %d retries: %w", maxCodeRetries, lastErr)
}

// MarkDelivered отмечает момент отправки кода компании.
// На таймер экзамена не влияет.
func (s *AccessService) MarkDelivered(id uint) (*entity.ExamAccess, error) {
	if _, err := s.accessRepo.GetByID(id); err != nil {
		return nil, err
	}
	if err := s.accessRepo.MarkDelivered(id, time.Now()); err != nil {
		return nil, err
	}
	return s.accessRepo.GetByID(id)
}

// Dashboard возвращает сводку по партиям и статусам кодов
func (s *AccessService) Dashboard() (*DashboardStats, error) {
	batches, err := s.accessRepo.GroupByBatch()
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{Batches: batches}
	companies := make(map[string]struct{})
	for _, b := range batches {
		stats.TotalCodes += b.Count
		companies[strings.ToLower(b.CompanyName)] = struct{}{}
	}
	stats.Companies = len(companies)

	if stats.ActiveCodes, err = s.accessRepo.CountByStatus(entity.AccessStatusActive); err != nil {
		return nil, err
	}
	if stats.StartedCodes, err = s.accessRepo.CountByStatus(entity.AccessStatusStarted); err != nil {
		return nil, err
	}
	if stats.CompletedCodes, err = s.accessRepo.CountByStatus(entity.AccessStatusCompleted); err != nil {
		return nil, err
	}

	return stats, nil
}

// BatchCodes возвращает все коды партии
func (s *AccessService) BatchCodes(batchID string) ([]entity.ExamAccess, error) {
	records, err := s.accessRepo.ListByBatch(batchID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return records, nil
}

// DeleteBatch удаляет партию целиком
func (s *AccessService) DeleteBatch(batchID string) (int64, error) {
	deleted, err := s.accessRepo.DeleteBatch(batchID)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, apperrors.ErrNotFound
	}
	log.Printf("[AccessService] Удалена партия %s (%d кодов)", batchID, deleted)
	return deleted, nil
}

// RenameBatchCompany меняет компанию у всей партии
func (s *AccessService) RenameBatchCompany(batchID, companyName string) (int64, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return 0, fmt.Errorf("%w: company name is required", apperrors.ErrValidation)
	}
	updated, err := s.accessRepo.UpdateBatchCompany(batchID, companyName)
	if err != nil {
		return 0, err
	}
	if updated == 0 {
		return 0, apperrors.ErrNotFound
	}
	return updated, nil
}

// ListAttempts возвращает страницу попыток по экзамену
func (s *AccessService) ListAttempts(examID uint, limit, offset int) ([]entity.ExamAccess, int64, error) {
	if _, err := s.examRepo.GetByID(examID); err != nil {
		return nil, 0, err
	}
	return s.accessRepo.ListByExam(examID, limit, offset)
}

// GetAccess возвращает запись кода доступа по ID
func (s *AccessService) GetAccess(id uint) (*entity.ExamAccess, error) {
	return s.accessRepo.GetByID(id)
}

func (s *AccessService) createWithRetry(build func() *entity.ExamAccess) (*entity.ExamAccess, error) {
	var lastErr error
	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		record := build()
		err := s.accessRepo.Create(record)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("code collision persisted after %d retries: %w", maxCodeRetries, lastErr)
}

// companyPrefix строит 3-буквенный префикс кода из названия компании.
// Берутся первые буквы латиницы в верхнем регистре, нехватка добивается 'X'.
func companyPrefix(companyName string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(companyName) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() == 3 {
				break
			}
		}
	}
	for b.Len() < 3 {
		b.WriteByte('X')
	}
	return b.String()
}

func randomDigits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand не должен отказывать, но код обязан быть выдан
			b.WriteByte('0')
			continue
		}
		b.WriteByte(byte('0' + num.Int64()))
	}
	return b.String()
}

func randomResetCode() string {
	alphabetLen := big.NewInt(int64(len(resetCodeAlphabet)))
	groups := make([]string, 0, resetCodeGroups)
	for g := 0; g < resetCodeGroups; g++ {
		var b strings.Builder
		for i := 0; i < resetCodeGroupLen; i++ {
			num, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				b.WriteByte(resetCodeAlphabet[0])
				continue
			}
			b.WriteByte(resetCodeAlphabet[num.Int64()])
		}
		groups = append(groups, b.String())
	}
	return strings.Join(groups, "-")
}

// IsResetCode проверяет, имеет ли код формат сброшенного
func IsResetCode(code string) bool {
	parts := strings.Split(code, "-")
	if len(parts) != resetCodeGroups {
		return false
	}
	for _, part := range parts {
		if len(part) != resetCodeGroupLen {
			return false
		}
		for _, r := range part {
			if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
				return false
			}
			if !strings.ContainsRune(resetCodeAlphabet, r) {
				return false
			}
		}
	}
	return true
}
