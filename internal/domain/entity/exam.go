package entity

import (
	"time"
)

// Exam представляет банк вопросов с заданной длительностью прохождения
type Exam struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Title            string     `gorm:"size:100;not null" json:"title"`
	DurationMin      int        `gorm:"not null;default:30" json:"duration_min"`
	Language         string     `gorm:"size:20;not null;default:'English'" json:"language"`
	IsActive         bool       `gorm:"not null;default:false;index" json:"is_active"`
	PassThresholdPct int        `gorm:"not null;default:50" json:"pass_threshold_pct"`
	CreatorID        uint       `gorm:"not null;index" json:"creator_id"`
	Questions        []Question `gorm:"foreignKey:ExamID" json:"questions,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Exam) TableName() string {
	return "exams"
}

// Duration возвращает длительность экзамена как time.Duration
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMin) * time.Minute
}

// TotalMarks возвращает сумму баллов всех вопросов экзамена
func (e *Exam) TotalMarks() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Marks
	}
	return total
}
