package auth

import (
	"context"
)

type ctxKey string

const ContextUserKey ctxKey = "user"

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok
}

func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, ContextUserKey, user)
}

const (
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ABACPolicy decides access to owned resources from the principal's role and the owner id.
type ABACPolicy struct{}

func NewABACPolicy() *ABACPolicy {
	return &ABACPolicy{}
}

// Allow grants administrators everything, holders of permission everything, and owners the basic actions.
func (p *ABACPolicy) Allow(user *User, resourceOwnerID, permission, action string) bool {
	if user == nil {
		return false
	}
	if user.IsAdministrator() {
		return true
	}
	if permission != "" && user.HasPermission(permission) {
		return true
	}
	if user.ID != "" && user.ID == resourceOwnerID {
		return action == ActionRead || action == ActionUpdate || action == ActionDelete
	}
	return false
}
