package user

import (
	"github.com/marvellous-media/marvellous-manager/internal/core/common/validation"
)

type CreateUserDTO struct {
	Username    string   `json:"username" validate:"notblank,max=64"`
	Password    string   `json:"password" validate:"required,min=8"`
	Role        string   `json:"role" validate:"required,oneof=admin senior operator producer"`
	IsAdmin     bool     `json:"is_admin"`
	Title       string   `json:"title" validate:"max=120"`
	BalanceDays *float64 `json:"balance_days,omitempty" validate:"omitempty,gte=0"`
}

func (d CreateUserDTO) Validate() error {
	return validation.Struct(d)
}

type UpdateUserDTO struct {
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin senior operator producer"`
	Title    *string `json:"title,omitempty" validate:"omitempty,max=120"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8"`
}

func (d UpdateUserDTO) Validate() error {
	return validation.Struct(d)
}

type SetBalanceDTO struct {
	Days *float64 `json:"days" validate:"required,gte=0,lte=366"`
}

func (d SetBalanceDTO) Validate() error {
	return validation.Struct(d)
}
