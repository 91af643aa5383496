package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// User is the authenticated principal attached to a request.
type User struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	IsAdmin     bool     `json:"is_admin"`
	Title       string   `json:"title,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// IsAdministrator honours both the role and the legacy is_admin flag.
func (u *User) IsAdministrator() bool {
	if u == nil {
		return false
	}
	return u.Role == RoleAdmin || u.IsAdmin
}

func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	if u.IsAdministrator() {
		return true
	}
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (u *User) HasAnyPermission(permissions []string) bool {
	for _, p := range permissions {
		if u.HasPermission(p) {
			return true
		}
	}
	return false
}

// Credentials is what the repository returns for a login lookup.
type Credentials struct {
	UserID       string
	Username     string
	Role         string
	PasswordHash string
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
