package register

import (
	"context"
	"errors"
	"net/http"

	"nitroshare/cmd/internal/api"
)

var (
	// ErrPasswordMismatch is returned when the password is too short or the
	// confirmation differs.
	ErrPasswordMismatch = errors.New("register: password too short or confirmation differs")

	// ErrRejected is returned when the backend refuses the sign-up
	// (registration disabled, or input it considers invalid).
	ErrRejected = errors.New("register: rejected by backend")

	// ErrTaken is returned when the username or email is already used.
	ErrTaken = errors.New("register: username or email taken")
)

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, in api.RegisterRequest) (api.User, error)
}

// Form is the sign-up input.
type Form struct {
	Username string
	Email    string
	Password NewPassword
}

// Register validates f locally and creates the account.
func Register(ctx context.Context, r Registrar, f Form) (api.User, error) {
	username, err := ValidateUsername(f.Username)
	if err != nil {
		return api.User{}, err
	}
	email, err := ValidateEmail(f.Email)
	if err != nil {
		return api.User{}, err
	}
	if !f.Password.Valid() {
		return api.User{}, ErrPasswordMismatch
	}

	u, err := r.Register(ctx, api.RegisterRequest{
		Username: username,
		Email:    email,
		Password: f.Password.Password,
	})
	if err != nil {
		switch api.StatusOf(err) {
		case http.StatusBadRequest:
			return api.User{}, errors.Join(ErrRejected, err)
		case http.StatusConflict:
			return api.User{}, errors.Join(ErrTaken, err)
		}
		return api.User{}, err
	}
	return u, nil
}
