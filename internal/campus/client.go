// Package campus fetches dormitory energy balances from the campus account
// system.
package campus

import (
	"context"
	"errors"
	"time"
)

// ErrNotAuthenticated is returned when the campus system rejects a
// credential.
var ErrNotAuthenticated = errors.New("not authenticated")

// Credential is the token pair issued by a successful login.
type Credential struct {
	UserToken    string    `json:"user_token"`
	RefreshToken string    `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at"`
}

// Valid reports whether both tokens are present.
func (c Credential) Valid() bool {
	return c.UserToken != "" && c.RefreshToken != ""
}

// Client opens authenticated sessions against the campus system.
type Client interface {
	Login(ctx context.Context, account, password string) (Session, error)
	// Resume opens a session from a previously issued credential.
	Resume(ctx context.Context, cred Credential) (Session, error)
}

// Session is an authenticated top-level session.
type Session interface {
	Credential() Credential
	OpenECard(ctx context.Context) (ECard, error)
	Close(ctx context.Context) error
}

// ECard is the balance-query sub-session.
type ECard interface {
	RemainingPower(ctx context.Context, room string) (float64, error)
	Close(ctx context.Context) error
}
