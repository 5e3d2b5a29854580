package identity

import (
	"context"
	"net/http"
	"strings"
)

// User is an authenticated shopper.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Phone    string `json:"phone,omitempty"`

	// AccessToken is forwarded to collaborators that verify the caller themselves.
	AccessToken string `json:"-"`
}

// Profile holds the contact fields a user saved on their account.
type Profile struct {
	UserID   string
	FullName string
	Email    string
	Phone    string
}

// Preferences is the quiz profile. Budgets are in cents.
type Preferences struct {
	BudgetMin   *int64   `json:"budget_min"`
	BudgetMax   *int64   `json:"budget_max"`
	CarTypes    []string `json:"car_types"`
	Seats       *int     `json:"seats"`
	MPGPriority *string  `json:"mpg_priority"`
	UseCase     *string  `json:"use_case"`
}

// Resolver turns a bearer token into a user. An unknown or expired token
// yields an apperr KindAuth error.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*User, error)
}

// ProfileStore loads account data. Both methods return nil, nil when the
// user has nothing stored.
type ProfileStore interface {
	Profile(ctx context.Context, userID string) (*Profile, error)
	Preferences(ctx context.Context, userID string) (*Preferences, error)
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *User) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, u)
}

func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*User)
	return u, ok && u != nil
}

// BearerToken extracts the token from an Authorization header, or "".
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
