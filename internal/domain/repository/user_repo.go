package repository

import (
	"github.com/yourusername/exam-portal-api/internal/domain/entity"
)

// UserRepository определяет методы для работы с администраторами
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
}
