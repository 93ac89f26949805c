package service

import "errors"

// Ошибки жизненного цикла попытки. Хендлеры транслируют их в HTTP-статусы
// и коды причин для клиента.
var (
	// ErrInvalidCode - код доступа не существует
	ErrInvalidCode = errors.New("invalid access code")

	// ErrCompanyMismatch - название компании не совпадает с привязанным к коду
	ErrCompanyMismatch = errors.New("company name does not match access code")

	// ErrAttemptAlreadyActive - код уже активирован, экзамен идёт
	ErrAttemptAlreadyActive = errors.New("attempt already in progress")

	// ErrAttemptCompleted - попытка уже завершена, терминальное состояние
	ErrAttemptCompleted = errors.New("attempt already completed")

	// ErrAttemptNotStarted - операция требует активированной попытки
	ErrAttemptNotStarted = errors.New("attempt has not been started")

	// ErrNoExamSelected - к коду не привязан экзамен и он не указан в запросе
	ErrNoExamSelected = errors.New("no exam selected for this access code")

	// ErrSubmissionConflict - конкурирующая сдача успела завершить попытку первой
	ErrSubmissionConflict = errors.New("attempt was completed by a concurrent submission")

	// ErrDeadlineExceeded - сдача пришла после дедлайна с учётом grace-периода
	ErrDeadlineExceeded = errors.New("submission deadline exceeded")
)
