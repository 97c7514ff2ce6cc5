// Package lambdafn adapts the broker and the rotation coordinator to
// function-invocation payloads.
package lambdafn

import (
	"context"
	"net/http"

	"github.com/systmms/mailbroker/internal/broker"
	mberrors "github.com/systmms/mailbroker/internal/errors"
)

// Authenticator is satisfied by *broker.Broker.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*broker.CredentialBundle, error)
}

// AuthRequest is the invocation payload.
type AuthRequest struct {
	User     string `json:"User"`
	Password string `json:"Password"`
}

// AuthResponse carries the bundle fields inline on success.
type AuthResponse struct {
	StatusCode int    `json:"StatusCode"`
	Message    string `json:"Message,omitempty"`
	*broker.CredentialBundle
}

// AuthFunction answers authentication invocations.
type AuthFunction struct {
	auth Authenticator
}

// NewAuthFunction creates an AuthFunction.
func NewAuthFunction(auth Authenticator) *AuthFunction {
	return &AuthFunction{auth: auth}
}

// Handle never returns an error; the outcome is in StatusCode.
func (f *AuthFunction) Handle(ctx context.Context, req AuthRequest) (AuthResponse, error) {
	bundle, err := f.auth.Authenticate(ctx, req.User, req.Password)
	switch {
	case err == nil:
		return AuthResponse{StatusCode: http.StatusOK, CredentialBundle: bundle}, nil
	case mberrors.Is(err, mberrors.Unauthorized):
		return AuthResponse{StatusCode: http.StatusForbidden, Message: "Invalid username or password"}, nil
	default:
		return AuthResponse{StatusCode: http.StatusInternalServerError, Message: err.Error()}, nil
	}
}
