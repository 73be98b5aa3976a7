package auth

import (
	"errors"
)

var (
	ErrInvalidState = errors.New("invalid or expired login state")
	ErrMissingCode  = errors.New("missing authorization code")
	ErrAuthDenied   = errors.New("authorization denied")
	ErrExchange     = errors.New("code exchange failed")
)

type loginState struct {
	ReturnTo string
}

// UserInfo is the profile served by the UserInfo endpoint.
type UserInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Picture    string `json:"picture,omitempty"`
	Locale     string `json:"locale,omitempty"`
}
