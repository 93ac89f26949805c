package service

import (
	"context"
	"log"
	"time"

	"github.com/yourusername/exam-portal-api/internal/domain/repository"
)

const sweepLockKey = "sweep:attempts:lock"

// AttemptSweeper периодически закрывает брошенные попытки.
// Кластерная безопасность обеспечивается Redis-локом через SetNX:
// в каждом цикле очистку выполняет ровно один инстанс.
type AttemptSweeper struct {
	attempts  *AttemptService
	cacheRepo repository.CacheRepository
	interval  time.Duration
}

// NewAttemptSweeper создает новый sweeper
func NewAttemptSweeper(attempts *AttemptService, cacheRepo repository.CacheRepository, interval time.Duration) *AttemptSweeper {
	return &AttemptSweeper{
		attempts:  attempts,
		cacheRepo: cacheRepo,
		interval:  interval,
	}
}

// Run запускает цикл очистки до отмены контекста.
// Вызывается из main как отдельная горутина.
func (s *AttemptSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		log.Println("[AttemptSweeper] Очистка отключена (нулевой интервал)")
		return
	}

	log.Printf("[AttemptSweeper] Очистка брошенных попыток каждые %v", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			log.Println("[AttemptSweeper] Остановлен")
			return
		}
	}
}

func (s *AttemptSweeper) sweep(ctx context.Context) {
	// Лок живёт чуть меньше интервала, чтобы следующий цикл не заблокировало
	// зависшим владельцем
	lockTTL := s.interval - time.Second
	if lockTTL <= 0 {
		lockTTL = s.interval
	}

	if s.cacheRepo != nil {
		acquired, err := s.cacheRepo.SetNX(sweepLockKey, time.Now().Unix(), lockTTL)
		if err != nil {
			log.Printf("[AttemptSweeper] Ошибка взятия лока: %v. Пропуск цикла.", err)
			return
		}
		if !acquired {
			return
		}
	}

	if _, err := s.attempts.ExpireStale(ctx); err != nil {
		log.Printf("[AttemptSweeper] Ошибка очистки: %v", err)
	}
}
