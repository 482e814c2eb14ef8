package service

import (
	"log/slog"

	"github.com/google/uuid"

	"matrix-bank/internal/apperrors"
	"matrix-bank/internal/domain"
	"matrix-bank/internal/repository"
	"matrix-bank/internal/utils"
)

// UserService handles registration. Login and session handling live outside
// this service; requests arrive with an already-resolved user id.
type UserService struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewUserService(store *repository.Store, logger *slog.Logger) *UserService {
	return &UserService{store: store, logger: logger}
}

func (s *UserService) Register(username, password, email, fullname string) (*domain.User, error) {
	if username == "" || password == "" || email == "" || fullname == "" {
		return nil, apperrors.New(apperrors.KindValidation, apperrors.InvalidInput,
			"username, password, email and fullname are required")
	}

	passwordHash, err := utils.HashPassword(password)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, apperrors.InternalError,
			"failed to hash password").WithDetails(err.Error())
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		Fullname:     fullname,
		PasswordHash: passwordHash,
	}
	if err := s.store.Users().Create(user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "username", username, "user_id", user.ID)
	return user, nil
}
