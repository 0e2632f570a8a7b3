package auth

import (
	"errors"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var (
	ErrUserNotFoundWithEmail = errors.New("no user found for given email")
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrGeneratingJwt         = errors.New("error generating jwt")
	ErrEmailAlreadyInUse     = errors.New("email is already in use")
	ErrUsernameAlreadyInUse  = errors.New("username is already in use")
	ErrLoginDisabled         = errors.New("login is disabled for this account")
)

type LoginResult struct {
	UserId      uuid.UUID
	AccessToken string
}

type NewUserArgs struct {
	Username  string
	Email     string
	FirstName string
	LastName  string

	// Empty password creates an account with login disabled.
	Password string

	IsManager bool
}

// IdentityProvider is the only seam through which the portal touches
// credentials. Everything else receives the authenticated user from the
// request context.
type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	AllowDirectSignup() bool

	LoginWithEmail(email, password string) (LoginResult, error)

	CreateUser(args NewUserArgs) (uuid.UUID, error)

	DeleteUser(userId uuid.UUID) error
}

type requestContextKey string

const UserRequestContextKey requestContextKey = "user"
