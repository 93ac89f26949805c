package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	"github.com/yourusername/exam-portal-api/internal/domain/repository"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
	"github.com/yourusername/exam-portal-api/internal/websocket"
)

// AttemptConfig - политики жизненного цикла попытки
type AttemptConfig struct {
	// GracePeriod - допуск после дедлайна: сдача внутри него принимается
	// с пометкой is_late, после него отклоняется
	GracePeriod time.Duration

	// SweepGrace - дополнительный допуск перед принудительным завершением
	// брошенной попытки фоновой очисткой
	SweepGrace time.Duration

	// DefaultPassThresholdPct - порог прохождения, если у экзамена не задан свой
	DefaultPassThresholdPct int

	// ContentCacheTTL - время жизни кеша контента экзамена
	ContentCacheTTL time.Duration
}

// ExamContent - контент экзамена, выдаваемый студенту при старте и резюме.
// CorrectOption скрыт json-тегом на уровне сущности.
type ExamContent struct {
	Exam             *entity.Exam `json:"exam"`
	RemainingSeconds int          `json:"remaining_seconds"`
}

// AttemptService реализует машину состояний попытки сдачи экзамена:
// ACTIVE -> STARTED -> COMPLETED, все переходы только вперёд.
type AttemptService struct {
	accessRepo repository.AccessRepository
	examRepo   repository.ExamRepository
	cacheRepo  repository.CacheRepository
	sender     ReportSender
	hub        *websocket.Hub
	config     AttemptConfig
}

// NewAttemptService создает новый сервис попыток
func NewAttemptService(
	accessRepo repository.AccessRepository,
	examRepo repository.ExamRepository,
	cacheRepo repository.CacheRepository,
	sender ReportSender,
	hub *websocket.Hub,
	config AttemptConfig,
) *AttemptService {
	if sender == nil {
		sender = &NoopReportSender{}
	}
	return &AttemptService{
		accessRepo: accessRepo,
		examRepo:   examRepo,
		cacheRepo:  cacheRepo,
		sender:     sender,
		hub:        hub,
		config:     config,
	}
}

// Redeem активирует код доступа: проверяет компанию, фиксирует личность
// студента и запускает таймер экзамена (sentAt = now).
func (s *AttemptService) Redeem(code, companyName string, examID *uint, identity repository.StudentIdentity) (*entity.ExamAccess, error) {
	access, err := s.accessRepo.GetByCode(code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	if access.IsCompleted() {
		return nil, ErrAttemptCompleted
	}
	if access.IsStarted() {
		return nil, ErrAttemptAlreadyActive
	}

	// Второй фактор: название компании, без учёта регистра и пробелов
	if !access.MatchesCompany(companyName) {
		return nil, ErrCompanyMismatch
	}

	// Экзамен либо указан в запросе, либо заранее привязан к коду
	effectiveExamID := access.ExamID
	if examID != nil {
		effectiveExamID = examID
	}
	if effectiveExamID == nil {
		return nil, ErrNoExamSelected
	}

	exam, err := s.examRepo.GetByID(*effectiveExamID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: exam %d not found", apperrors.ErrValidation, *effectiveExamID)
		}
		return nil, err
	}
	if !exam.IsActive {
		return nil, fmt.Errorf("%w: exam %d is not active", apperrors.ErrValidation, exam.ID)
	}

	if identity.StudentName == "" {
		return nil, fmt.Errorf("%w: student name is required", apperrors.ErrValidation)
	}

	now := time.Now()
	if err := s.accessRepo.MarkStarted(access.ID, exam.ID, identity, now); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Конкурентная активация того же кода успела первой
			return nil, ErrAttemptAlreadyActive
		}
		return nil, err
	}

	updated, err := s.accessRepo.GetByID(access.ID)
	if err != nil {
		return nil, err
	}

	s.notify("attempt.started", updated)
	go s.sendRegistrationNotification(updated)

	log.Printf("[AttemptService] Попытка стартовала: code=%s company=%s exam=%d", code, access.CompanyName, exam.ID)
	return updated, nil
}

// Content возвращает контент экзамена для идущей попытки вместе с
// оставшимся временем. Используется и на старте, и при резюме после
// перезагрузки страницы.
func (s *AttemptService) Content(code string) (*ExamContent, error) {
	access, err := s.accessRepo.GetByCode(code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	if access.IsCompleted() {
		return nil, ErrAttemptCompleted
	}
	if !access.IsStarted() {
		return nil, ErrAttemptNotStarted
	}
	if access.ExamID == nil {
		return nil, ErrNoExamSelected
	}

	exam, err := s.loadExamContent(*access.ExamID)
	if err != nil {
		return nil, err
	}

	// Истёкшая, но ещё не закрытая попытка получает контент с нулевым
	// остатком времени: клиент сразу уводит на сдачу
	remaining := access.RemainingSeconds(exam.DurationMin, time.Now())

	return &ExamContent{Exam: exam, RemainingSeconds: remaining}, nil
}

// Submit завершает попытку: подсчитывает балл и атомарно переводит запись
// в COMPLETED. Повторная или конкурентная сдача получает ErrSubmissionConflict.
func (s *AttemptService) Submit(code string, examID *uint, answers entity.AnswerMap) (*AttemptReport, error) {
	access, err := s.accessRepo.GetByCode(code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	if access.IsCompleted() {
		return nil, ErrAttemptCompleted
	}
	if !access.IsStarted() {
		return nil, ErrAttemptNotStarted
	}

	effectiveExamID := access.ExamID
	if examID != nil {
		effectiveExamID = examID
	}
	if effectiveExamID == nil {
		return nil, ErrNoExamSelected
	}

	exam, err := s.examRepo.GetWithQuestions(*effectiveExamID)
	if err != nil {
		return nil, err
	}

	// Жёсткий серверный дедлайн: внутри grace принимаем с пометкой,
	// после grace отклоняем
	now := time.Now()
	deadline, ok := access.Deadline(exam.DurationMin)
	if !ok {
		return nil, ErrAttemptNotStarted
	}
	isLate := now.After(deadline)
	if now.After(deadline.Add(s.config.GracePeriod)) {
		return nil, ErrDeadlineExceeded
	}

	sanitized := sanitizeAnswers(exam.Questions, answers)
	score := ScoreAnswers(exam.Questions, sanitized)

	if err := s.accessRepo.Complete(access.ID, exam.ID, score, sanitized, now, isLate, false); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, ErrSubmissionConflict
		}
		return nil, err
	}

	completed, err := s.accessRepo.GetByID(access.ID)
	if err != nil {
		return nil, err
	}

	report := BuildReport(exam, completed, s.passThreshold(exam))

	s.notify("attempt.completed", completed)
	go s.sendCompletionReport(completed, report)

	log.Printf("[AttemptService] Попытка завершена: code=%s score=%d/%d late=%t", code, report.Score, report.TotalMarks, isLate)
	return report, nil
}

// Result пересчитывает отчёт завершённой попытки из сохранённых ответов
func (s *AttemptService) Result(code string) (*AttemptReport, *entity.ExamAccess, error) {
	access, err := s.accessRepo.GetByCode(code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, ErrInvalidCode
		}
		return nil, nil, err
	}

	if !access.IsCompleted() {
		return nil, nil, ErrAttemptNotStarted
	}
	if access.ExamID == nil {
		return nil, nil, ErrNoExamSelected
	}

	exam, err := s.examRepo.GetWithQuestions(*access.ExamID)
	if err != nil {
		return nil, nil, err
	}

	report := BuildReport(exam, access, s.passThreshold(exam))
	return report, access, nil
}

// Report строит отчёт по ID попытки для админского просмотра ответов
func (s *AttemptService) Report(accessID uint) (*AttemptReport, *entity.ExamAccess, error) {
	access, err := s.accessRepo.GetByID(accessID)
	if err != nil {
		return nil, nil, err
	}
	if !access.IsCompleted() {
		return nil, nil, ErrAttemptNotStarted
	}
	if access.ExamID == nil {
		return nil, nil, ErrNoExamSelected
	}

	exam, err := s.examRepo.GetWithQuestions(*access.ExamID)
	if err != nil {
		return nil, nil, err
	}

	report := BuildReport(exam, access, s.passThreshold(exam))
	return report, access, nil
}

// ExpireStale принудительно завершает STARTED-попытки, чей дедлайн с учётом
// sweep grace уже прошёл. Сохранённых ответов у таких попыток нет, балл 0.
// Возвращает количество закрытых попыток.
func (s *AttemptService) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.accessRepo.FindExpiredStarted(s.config.SweepGrace, time.Now())
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range stale {
		access := &stale[i]
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		if access.ExamID == nil {
			continue
		}

		exam, err := s.examRepo.GetWithQuestions(*access.ExamID)
		if err != nil {
			log.Printf("[AttemptService] Очистка: не удалось загрузить экзамен %d: %v", *access.ExamID, err)
			continue
		}

		score := ScoreAnswers(exam.Questions, access.Answers)
		err = s.accessRepo.Complete(access.ID, exam.ID, score, access.Answers, time.Now(), true, true)
		if err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				// Студент успел сдать между выборкой и закрытием
				continue
			}
			log.Printf("[AttemptService] Очистка: не удалось закрыть попытку %d: %v", access.ID, err)
			continue
		}
		closed++

		if completed, getErr := s.accessRepo.GetByID(access.ID); getErr == nil {
			s.notify("attempt.expired", completed)
			report := BuildReport(exam, completed, s.passThreshold(exam))
			go s.sendCompletionReport(completed, report)
		}
	}

	if closed > 0 {
		log.Printf("[AttemptService] Очистка закрыла %d брошенных попыток", closed)
	}
	return closed, nil
}

// InvalidateExamContent сбрасывает кеш контента экзамена.
// Вызывается из ExamService при изменении экзамена или его вопросов.
func (s *AttemptService) InvalidateExamContent(examID uint) {
	if s.cacheRepo == nil {
		return
	}
	if err := s.cacheRepo.Delete(examContentCacheKey(examID)); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("[AttemptService] Не удалось сбросить кеш экзамена %d: %v", examID, err)
	}
}

func (s *AttemptService) loadExamContent(examID uint) (*entity.Exam, error) {
	key := examContentCacheKey(examID)

	if s.cacheRepo != nil {
		var cached entity.Exam
		if err := s.cacheRepo.GetJSON(key, &cached); err == nil && cached.ID == examID {
			return &cached, nil
		}
	}

	exam, err := s.examRepo.GetWithQuestions(examID)
	if err != nil {
		return nil, err
	}

	// В кеш уходит JSON без correctOption (скрыт тегом), поэтому кеш
	// годится только для выдачи контента, не для подсчёта баллов
	if s.cacheRepo != nil {
		if err := s.cacheRepo.SetJSON(key, exam, s.config.ContentCacheTTL); err != nil {
			log.Printf("[AttemptService] Не удалось закешировать экзамен %d: %v", examID, err)
		}
	}

	return exam, nil
}

func (s *AttemptService) passThreshold(exam *entity.Exam) int {
	if exam.PassThresholdPct > 0 {
		return exam.PassThresholdPct
	}
	return s.config.DefaultPassThresholdPct
}

func (s *AttemptService) notify(eventType string, access *entity.ExamAccess) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(eventType, map[string]interface{}{
		"access_id":    access.ID,
		"access_code":  access.AccessCode,
		"company_name": access.CompanyName,
		"student_name": access.StudentName,
		"exam_id":      access.ExamID,
		"status":       access.Status,
		"score":        access.Score,
	})
}

// sendRegistrationNotification и sendCompletionReport работают fire-and-forget:
// сбой почты никогда не ломает исход для студента
func (s *AttemptService) sendRegistrationNotification(access *entity.ExamAccess) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.sender.SendRegistrationNotification(ctx, access); err != nil {
		log.Printf("[AttemptService] Не удалось отправить уведомление о регистрации code=%s: %v", access.AccessCode, err)
	}
}

func (s *AttemptService) sendCompletionReport(access *entity.ExamAccess, report *AttemptReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.sender.SendCompletionReport(ctx, access, report); err != nil {
		log.Printf("[AttemptService] Не удалось отправить отчёт code=%s: %v", access.AccessCode, err)
	}
}

// sanitizeAnswers отбрасывает ответы на чужие вопросы и с индексом варианта
// вне диапазона, чтобы мусор из запроса не попадал в хранилище
func sanitizeAnswers(questions []entity.Question, answers entity.AnswerMap) entity.AnswerMap {
	valid := make(entity.AnswerMap, len(answers))
	for i := range questions {
		q := &questions[i]
		if selected, ok := answers[q.ID]; ok && q.IsValidOption(selected) {
			valid[q.ID] = selected
		}
	}
	return valid
}

func examContentCacheKey(examID uint) string {
	return fmt.Sprintf("exam:content:%d", examID)
}
