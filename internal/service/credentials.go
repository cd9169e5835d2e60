package service

import "github.com/tazhibayda/authcore/internal/domain"

// Credentials is the closed set of ways to complete a login. Only the types
// in this file implement it.
type Credentials interface {
	Provider() domain.Provider
	credentials()
}

type PasswordCredentials struct {
	Email    string
	Password string
}

type GoogleCredentials struct {
	Profile domain.OAuthProfile
}

type MagicLinkCredentials struct {
	Token string
}

func (PasswordCredentials) Provider() domain.Provider  { return domain.ProviderPassword }
func (GoogleCredentials) Provider() domain.Provider    { return domain.ProviderGoogle }
func (MagicLinkCredentials) Provider() domain.Provider { return domain.ProviderMagicLink }

func (PasswordCredentials) credentials()  {}
func (GoogleCredentials) credentials()    {}
func (MagicLinkCredentials) credentials() {}
