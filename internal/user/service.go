package user

import (
	"context"
	"fmt"
	"log/slog"

	errors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
)

type Repository interface {
	GetByID(ctx context.Context, userID string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, userID string) error
	SetBalance(ctx context.Context, userID string, hours int) error
	ListAdminIDs(ctx context.Context) ([]string, error)
}

type Service struct {
	repo       Repository
	rules      BalanceRules
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo Repository, rules BalanceRules, bcryptCost int, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		rules:      rules,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *Service) Rules() BalanceRules {
	return s.rules
}

func (s *Service) GetByID(ctx context.Context, userID string) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.BalanceDays = s.rules.DaysFromHours(u.Balance)
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return nil, err
	}
	for _, u := range users {
		u.BalanceDays = s.rules.DaysFromHours(u.Balance)
	}
	return users, nil
}

func (s *Service) Create(ctx context.Context, actor *auth.User, dto CreateUserDTO) (*User, error) {
	if !actor.HasPermission(auth.PermManageUsers) {
		s.logger.Warn("create user denied: insufficient permissions", "actor_id", actor.ID)
		return nil, errors.ErrUnauthorizedAccess
	}

	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByUsername(ctx, dto.Username); err == nil && existing != nil {
		return nil, errors.ErrUsernameTaken
	}

	hash, err := auth.HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, errors.NewInternalError("failed to hash password", err)
	}

	balance := s.rules.DefaultHours()
	if dto.BalanceDays != nil {
		balance = s.rules.HoursFromDays(*dto.BalanceDays)
	}

	u := &User{
		Username:     dto.Username,
		PasswordHash: hash,
		Role:         dto.Role,
		IsAdmin:      dto.IsAdmin,
		Title:        dto.Title,
		Balance:      &balance,
	}

	if err := s.repo.Create(ctx, u); err != nil {
		s.logger.Error("failed to create user", "error", err, "username", dto.Username)
		return nil, err
	}

	u.BalanceDays = s.rules.DaysFromHours(u.Balance)
	s.logger.Info("user created", "user_id", u.ID, "role", u.Role, "actor_id", actor.ID)
	return u, nil
}

func (s *Service) Update(ctx context.Context, actor *auth.User, userID string, dto UpdateUserDTO) (*User, error) {
	if !actor.HasPermission(auth.PermManageUsers) {
		s.logger.Warn("update user denied: insufficient permissions", "actor_id", actor.ID, "user_id", userID)
		return nil, errors.ErrUnauthorizedAccess
	}

	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if dto.Role != nil {
		u.Role = *dto.Role
	}
	if dto.Title != nil {
		u.Title = *dto.Title
	}
	if dto.IsAdmin != nil {
		u.IsAdmin = *dto.IsAdmin
	}
	if dto.Password != nil {
		hash, err := auth.HashPassword(*dto.Password, s.bcryptCost)
		if err != nil {
			return nil, errors.NewInternalError("failed to hash password", err)
		}
		u.PasswordHash = hash
	}

	if err := s.repo.Update(ctx, u); err != nil {
		s.logger.Error("failed to update user", "error", err, "user_id", userID)
		return nil, err
	}

	u.BalanceDays = s.rules.DaysFromHours(u.Balance)
	return u, nil
}

func (s *Service) Delete(ctx context.Context, actor *auth.User, userID string) error {
	if !actor.IsAdministrator() {
		s.logger.Warn("delete user denied: insufficient permissions", "actor_id", actor.ID, "user_id", userID)
		return errors.ErrUnauthorizedAccess
	}
	if actor.ID == userID {
		return errors.NewValidationError("You cannot delete your own account", errors.ErrCodeValidationFailed)
	}

	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to delete user", "error", err, "user_id", userID)
		return err
	}

	s.logger.Info("user deleted", "user_id", userID, "actor_id", actor.ID)
	return nil
}

// SetBalance is the only write path to a user's balance. Days are stored as whole hours.
func (s *Service) SetBalance(ctx context.Context, actor *auth.User, userID string, dto SetBalanceDTO) (*User, error) {
	if !actor.HasPermission(auth.PermManageBalances) {
		s.logger.Warn("set balance denied: insufficient permissions", "actor_id", actor.ID, "user_id", userID)
		return nil, errors.ErrUnauthorizedAccess
	}

	if err := dto.Validate(); err != nil {
		return nil, err
	}

	hours := s.rules.HoursFromDays(*dto.Days)
	if err := s.repo.SetBalance(ctx, userID, hours); err != nil {
		s.logger.Error("failed to set balance", "error", err, "user_id", userID)
		return nil, err
	}

	s.logger.Info("balance updated", "user_id", userID, "days", *dto.Days, "hours", hours, "actor_id", actor.ID)
	return s.GetByID(ctx, userID)
}

// ListAdminIDs returns everyone who counts as an administrator.
func (s *Service) ListAdminIDs(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListAdminIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return ids, nil
}
