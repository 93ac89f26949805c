package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestion_IsCorrect_CorrectAnswer(t *testing.T) {
	// Arrange
	question := &Question{
		ID:            1,
		ExamID:        1,
		Text:          "Какой язык используется в Go?",
		Options:       StringArray{"Python", "Go", "Java", "Rust"},
		CorrectOption: 1, // "Go" — индекс 1
		Marks:         2,
	}

	// Act & Assert
	assert.True(t, question.IsCorrect(1), "IsCorrect должен вернуть true для правильного ответа")
}

func TestQuestion_IsCorrect_IncorrectAnswer(t *testing.T) {
	// Arrange
	question := &Question{
		ID:            1,
		CorrectOption: 2,
	}

	// Act & Assert
	assert.False(t, question.IsCorrect(0), "IsCorrect должен вернуть false для неправильного ответа")
	assert.False(t, question.IsCorrect(1), "IsCorrect должен вернуть false для неправильного ответа")
	assert.False(t, question.IsCorrect(3), "IsCorrect должен вернуть false для неправильного ответа")
}

func TestQuestion_IsValidOption(t *testing.T) {
	// Arrange
	question := &Question{
		Options: StringArray{"A", "B", "C", "D"},
	}

	// Act & Assert: валидные опции
	assert.True(t, question.IsValidOption(0), "Индекс 0 должен быть валидным")
	assert.True(t, question.IsValidOption(3), "Индекс 3 должен быть валидным")

	// Assert: невалидные опции
	assert.False(t, question.IsValidOption(-1), "Отрицательный индекс должен быть невалидным")
	assert.False(t, question.IsValidOption(4), "Индекс вне диапазона должен быть невалидным")
	assert.False(t, question.IsValidOption(100), "Индекс далеко за пределами должен быть невалидным")
}

func TestQuestion_OptionsCount(t *testing.T) {
	question := &Question{
		Options: StringArray{"A", "B", "C"},
	}
	assert.Equal(t, 3, question.OptionsCount())

	empty := &Question{}
	assert.Equal(t, 0, empty.OptionsCount())
}

func TestQuestion_TableName(t *testing.T) {
	question := Question{}
	assert.Equal(t, "questions", question.TableName())
}

func TestStringArray_Scan_ValidJSON(t *testing.T) {
	// Arrange
	var arr StringArray
	jsonData := []byte(`["Option A","Option B","Option C"]`)

	// Act
	err := arr.Scan(jsonData)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StringArray{"Option A", "Option B", "Option C"}, arr)
}

func TestStringArray_Scan_NullValue(t *testing.T) {
	var arr StringArray
	err := arr.Scan(nil)

	require.NoError(t, err)
	assert.Equal(t, StringArray{}, arr, "NULL из базы должен давать пустой массив")
}

func TestStringArray_Scan_EmptyBytes(t *testing.T) {
	var arr StringArray
	err := arr.Scan([]byte{})

	require.NoError(t, err)
	assert.Equal(t, StringArray{}, arr)
}

func TestStringArray_Scan_InvalidType(t *testing.T) {
	var arr StringArray
	err := arr.Scan("not bytes")

	assert.Error(t, err, "Scan должен вернуть ошибку для не-[]byte значения")
}

func TestStringArray_Value_NonEmpty(t *testing.T) {
	arr := StringArray{"A", "B"}

	value, err := arr.Value()

	require.NoError(t, err)
	assert.JSONEq(t, `["A","B"]`, string(value.([]byte)))
}

func TestStringArray_Value_Empty(t *testing.T) {
	arr := StringArray{}

	value, err := arr.Value()

	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), value, "Пустой массив должен сериализоваться в [], а не null")
}

func TestExam_TotalMarks(t *testing.T) {
	exam := &Exam{
		Questions: []Question{
			{Marks: 1},
			{Marks: 2},
			{Marks: 3},
		},
	}
	assert.Equal(t, 6, exam.TotalMarks())

	empty := &Exam{}
	assert.Equal(t, 0, empty.TotalMarks())
}
