package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	apperrors "github.com/yourusername/exam-portal-api/internal/pkg/errors"
	"github.com/yourusername/exam-portal-api/pkg/auth"
)

// MockUserRepository реализует repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(user *entity.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(id uint) (*entity.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func newTestAuthService(t *testing.T, userRepo *MockUserRepository) *AuthService {
	t.Helper()
	jwtService, err := auth.NewJWTService("test-secret-for-unit-tests", 1)
	require.NoError(t, err)
	return NewAuthService(userRepo, jwtService)
}

func testAdmin(t *testing.T, password string) *entity.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &entity.User{
		ID:       1,
		Name:     "Admin",
		Email:    "admin@example.com",
		Password: string(hash),
		Role:     entity.RoleAdmin,
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	// Arrange
	userRepo := new(MockUserRepository)
	svc := newTestAuthService(t, userRepo)
	admin := testAdmin(t, "secret123")

	userRepo.On("GetByEmail", "admin@example.com").Return(admin, nil)

	// Act: email нормализуется к нижнему регистру
	token, user, err := svc.Login("  Admin@Example.com  ", "secret123")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, uint(1), user.ID)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	userRepo := new(MockUserRepository)
	svc := newTestAuthService(t, userRepo)
	admin := testAdmin(t, "secret123")

	userRepo.On("GetByEmail", "admin@example.com").Return(admin, nil)

	_, _, err := svc.Login("admin@example.com", "wrong-password")

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	userRepo := new(MockUserRepository)
	svc := newTestAuthService(t, userRepo)

	userRepo.On("GetByEmail", "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	_, _, err := svc.Login("ghost@example.com", "secret123")

	// Несуществующая учётка неотличима от неверного пароля
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestAuthService_Login_EmptyCredentials(t *testing.T) {
	userRepo := new(MockUserRepository)
	svc := newTestAuthService(t, userRepo)

	_, _, err := svc.Login("", "secret123")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = svc.Login("admin@example.com", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	userRepo.AssertNotCalled(t, "GetByEmail", mock.Anything)
}

func TestAuthService_Login_TokenIsValid(t *testing.T) {
	userRepo := new(MockUserRepository)
	jwtService, err := auth.NewJWTService("test-secret-for-unit-tests", 1)
	require.NoError(t, err)
	svc := NewAuthService(userRepo, jwtService)
	admin := testAdmin(t, "secret123")

	userRepo.On("GetByEmail", "admin@example.com").Return(admin, nil)

	token, _, err := svc.Login("admin@example.com", "secret123")
	require.NoError(t, err)

	claims, err := jwtService.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(1), claims.UserID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, entity.RoleAdmin, claims.Role)
}
