package authctx

import (
	"context"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// CurrentUser is the identity carried by a verified session token.
type CurrentUser struct {
	ID       int64
	Username string
	Email    string
	Roles    []string
}

func (u CurrentUser) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func WithCurrentUser(ctx context.Context, user CurrentUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func FromContext(ctx context.Context) *CurrentUser {
	val, ok := ctx.Value(userContextKey).(CurrentUser)
	if !ok {
		return nil
	}
	return &val
}
