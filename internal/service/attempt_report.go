package service

import (
	"math"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
)

// Вердикты по отдельному вопросу в отчёте
const (
	VerdictCorrect = "Correct"
	VerdictWrong   = "Wrong"
	VerdictSkipped = "Skipped"
)

// QuestionBreakdown - разбор одного вопроса в отчёте о попытке
type QuestionBreakdown struct {
	QuestionID     uint   `json:"question_id"`
	Text           string `json:"text"`
	SelectedOption *int   `json:"selected_option,omitempty"`
	CorrectOption  int    `json:"correct_option"`
	Marks          int    `json:"marks"`
	Awarded        int    `json:"awarded"`
	Verdict        string `json:"verdict"`
}

// AttemptReport - итоговый отчёт о завершённой попытке.
// Чистая функция от сохранённых ответов и списка вопросов, поэтому
// отчёт можно пересчитывать сколько угодно раз без мутаций.
type AttemptReport struct {
	ExamTitle    string              `json:"exam_title"`
	Score        int                 `json:"score"`
	TotalMarks   int                 `json:"total_marks"`
	Percentage   int                 `json:"percentage"`
	Passed       bool                `json:"passed"`
	CorrectCount int                 `json:"correct_count"`
	WrongCount   int                 `json:"wrong_count"`
	SkippedCount int                 `json:"skipped_count"`
	IsLate       bool                `json:"is_late"`
	IsExpired    bool                `json:"is_expired"`
	Breakdown    []QuestionBreakdown `json:"breakdown"`
}

// ScoreAnswers подсчитывает балл по ответам: отвеченный вопрос с совпавшим
// вариантом прибавляет свои баллы, пропущенный или неверный даёт 0.
func ScoreAnswers(questions []entity.Question, answers entity.AnswerMap) int {
	score := 0
	for i := range questions {
		q := &questions[i]
		if selected, ok := answers[q.ID]; ok && q.IsCorrect(selected) {
			score += q.Marks
		}
	}
	return score
}

// Passed проверяет порог прохождения в целочисленной арифметике:
// score*100 >= threshold*total, поэтому ровно пороговый балл проходит.
func Passed(score, totalMarks, thresholdPct int) bool {
	if totalMarks <= 0 {
		return false
	}
	return score*100 >= thresholdPct*totalMarks
}

// Percentage возвращает округлённый процент набранных баллов
func Percentage(score, totalMarks int) int {
	if totalMarks <= 0 {
		return 0
	}
	return int(math.Round(float64(score) * 100 / float64(totalMarks)))
}

// BuildReport собирает полный отчёт по попытке
func BuildReport(exam *entity.Exam, access *entity.ExamAccess, thresholdPct int) *AttemptReport {
	report := &AttemptReport{
		ExamTitle: exam.Title,
		IsLate:    access.IsLate,
		IsExpired: access.IsExpired,
		Breakdown: make([]QuestionBreakdown, 0, len(exam.Questions)),
	}

	for i := range exam.Questions {
		q := &exam.Questions[i]
		report.TotalMarks += q.Marks

		item := QuestionBreakdown{
			QuestionID:    q.ID,
			Text:          q.Text,
			CorrectOption: q.CorrectOption,
			Marks:         q.Marks,
		}

		selected, answered := access.Answers[q.ID]
		switch {
		case !answered:
			item.Verdict = VerdictSkipped
			report.SkippedCount++
		case q.IsCorrect(selected):
			sel := selected
			item.SelectedOption = &sel
			item.Awarded = q.Marks
			item.Verdict = VerdictCorrect
			report.Score += q.Marks
			report.CorrectCount++
		default:
			sel := selected
			item.SelectedOption = &sel
			item.Verdict = VerdictWrong
			report.WrongCount++
		}

		report.Breakdown = append(report.Breakdown, item)
	}

	report.Percentage = Percentage(report.Score, report.TotalMarks)
	report.Passed = Passed(report.Score, report.TotalMarks, thresholdPct)
	return report
}
