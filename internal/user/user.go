package user

import (
	"math"
	"time"

	userDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/user"
)

const (
	DefaultHoursPerDay  = 8
	DefaultBalanceDays  = 10
	DefaultBalanceHours = DefaultBalanceDays * DefaultHoursPerDay
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsAdmin      bool      `json:"is_admin"`
	Title        string    `json:"title"`
	Balance      *int      `json:"balance"`
	BalanceDays  float64   `json:"balance_days"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BalanceRules converts the stored hour balance to leave days.
type BalanceRules struct {
	HoursPerDay int
	DefaultDays int
}

func DefaultBalanceRules() BalanceRules {
	return BalanceRules{HoursPerDay: DefaultHoursPerDay, DefaultDays: DefaultBalanceDays}
}

func (b BalanceRules) hoursPerDay() int {
	if b.HoursPerDay <= 0 {
		return DefaultHoursPerDay
	}
	return b.HoursPerDay
}

// HoursFromDays is the only direction balance is ever written in.
func (b BalanceRules) HoursFromDays(days float64) int {
	return int(math.Round(days * float64(b.hoursPerDay())))
}

// DaysFromHours falls back to the default allowance when no balance is stored.
func (b BalanceRules) DaysFromHours(hours *int) float64 {
	if hours == nil {
		return float64(b.DefaultDays)
	}
	return float64(*hours) / float64(b.hoursPerDay())
}

func (b BalanceRules) DefaultHours() int {
	return b.DefaultDays * b.hoursPerDay()
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		IsAdmin:      u.IsAdmin,
		Title:        u.Title,
		Balance:      u.Balance,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		IsAdmin:      u.IsAdmin,
		Title:        u.Title,
		Balance:      u.Balance,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDataModelSlice(users []*userDatamodel.User) []*User {
	result := make([]*User, len(users))
	for i, u := range users {
		result[i] = FromDataModel(u)
	}
	return result
}
