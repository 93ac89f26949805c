package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Константы статусов кода доступа / попытки
const (
	AccessStatusActive    = "ACTIVE"    // код выдан, не использован
	AccessStatusStarted   = "STARTED"   // код активирован, экзамен идёт
	AccessStatusCompleted = "COMPLETED" // экзамен сдан, терминальное состояние
)

// AnswerMap - пользовательский тип для работы с JSONB.
// Отображает ID вопроса в индекс выбранного варианта; пропущенные вопросы
// в карте отсутствуют.
type AnswerMap map[uint]int

// Scan реализует интерфейс sql.Scanner для AnswerMap
func (a *AnswerMap) Scan(value interface{}) error {
	if value == nil {
		*a = AnswerMap{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*a = AnswerMap{}
		return nil
	}

	return json.Unmarshal(bytes, a)
}

// Value реализует интерфейс driver.Valuer для AnswerMap
func (a AnswerMap) Value() (driver.Value, error) {
	if a == nil || len(a) == 0 {
		return []byte("{}"), nil // Возвращаем пустой JSON объект вместо null
	}
	return json.Marshal(a)
}

// ExamAccess представляет код доступа и связанную с ним попытку сдачи экзамена.
// Жизненный цикл строго монотонный: ACTIVE -> STARTED -> COMPLETED.
type ExamAccess struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	AccessCode  string  `gorm:"size:20;not null;uniqueIndex" json:"access_code"`
	CompanyName string  `gorm:"size:100;not null" json:"company_name"`
	BatchID     *string `gorm:"size:36;index" json:"batch_id,omitempty"`
	ExamID      *uint   `gorm:"index" json:"exam_id,omitempty"`
	Status      string  `gorm:"size:20;not null;default:'ACTIVE';index" json:"status"`

	// SentAt фиксируется в момент перехода в STARTED и служит серверной
	// точкой отсчёта таймера экзамена.
	SentAt      *time.Time `json:"sent_at,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	// DeliveredAt отмечает момент отправки кода компании администратором
	// (не влияет на таймер экзамена).
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	Score     *int      `json:"score,omitempty"`
	Answers   AnswerMap `gorm:"type:jsonb" json:"answers,omitempty"`
	IsLate    bool      `gorm:"not null;default:false" json:"is_late"`
	IsExpired bool      `gorm:"not null;default:false" json:"is_expired"`

	StudentName     string `gorm:"size:100;not null;default:''" json:"student_name"`
	StudentEmail    string `gorm:"size:100;not null;default:''" json:"student_email"`
	StudentPhone    string `gorm:"size:30;not null;default:''" json:"student_phone"`
	SupervisorName  string `gorm:"size:100;not null;default:''" json:"supervisor_name"`
	SupervisorEmail string `gorm:"size:100;not null;default:''" json:"supervisor_email"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (ExamAccess) TableName() string {
	return "exam_access"
}

// IsIssued проверяет, что код ещё не использован
func (a *ExamAccess) IsIssued() bool {
	return a.Status == AccessStatusActive
}

// IsStarted проверяет, что экзамен по коду идёт
func (a *ExamAccess) IsStarted() bool {
	return a.Status == AccessStatusStarted
}

// IsCompleted проверяет, что попытка завершена
func (a *ExamAccess) IsCompleted() bool {
	return a.Status == AccessStatusCompleted
}

// MatchesCompany сравнивает название компании с сохранённым в записи:
// без учёта регистра, с обрезанными пробелами.
func (a *ExamAccess) MatchesCompany(companyName string) bool {
	stored := strings.ToLower(strings.TrimSpace(a.CompanyName))
	supplied := strings.ToLower(strings.TrimSpace(companyName))
	return stored != "" && stored == supplied
}

// Deadline возвращает момент истечения таймера экзамена.
// Вторым значением возвращает false, если попытка ещё не стартовала.
func (a *ExamAccess) Deadline(durationMin int) (time.Time, bool) {
	if a.SentAt == nil {
		return time.Time{}, false
	}
	return a.SentAt.Add(time.Duration(durationMin) * time.Minute), true
}

// RemainingSeconds возвращает оставшееся время экзамена в секундах,
// ограниченное снизу нулём.
func (a *ExamAccess) RemainingSeconds(durationMin int, now time.Time) int {
	deadline, ok := a.Deadline(durationMin)
	if !ok {
		return durationMin * 60
	}
	remaining := int(deadline.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
