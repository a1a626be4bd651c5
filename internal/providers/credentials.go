package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/lodestone-crm/lodestone-backend/internal/models"
	"golang.org/x/oauth2"
)

// CredentialSource resolves an account's credential reference into usable
// secrets. Tokens live outside this service; the sync engine only carries
// opaque references.
type CredentialSource interface {
	// OAuthToken returns the OAuth2 token for API-based providers.
	OAuthToken(ctx context.Context, account *models.EmailAccount) (*oauth2.Token, error)

	// Password returns the IMAP password for poll-only accounts.
	Password(ctx context.Context, account *models.EmailAccount) (string, error)
}

// StaticCredentialSource is an in-memory CredentialSource keyed by the
// account's credential reference. Used in development and tests.
type StaticCredentialSource struct {
	mu        sync.RWMutex
	tokens    map[string]*oauth2.Token
	passwords map[string]string
}

// NewStaticCredentialSource creates an empty StaticCredentialSource.
func NewStaticCredentialSource() *StaticCredentialSource {
	return &StaticCredentialSource{
		tokens:    make(map[string]*oauth2.Token),
		passwords: make(map[string]string),
	}
}

// PutToken stores an OAuth2 token under a credential reference.
func (s *StaticCredentialSource) PutToken(ref string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[ref] = token
}

// PutPassword stores a password under a credential reference.
func (s *StaticCredentialSource) PutPassword(ref, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[ref] = password
}

// OAuthToken implements CredentialSource.
func (s *StaticCredentialSource) OAuthToken(_ context.Context, account *models.EmailAccount) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[account.CredentialRef]
	if !ok {
		return nil, fmt.Errorf("no token for credential ref %q", account.CredentialRef)
	}
	return token, nil
}

// Password implements CredentialSource.
func (s *StaticCredentialSource) Password(_ context.Context, account *models.EmailAccount) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	password, ok := s.passwords[account.CredentialRef]
	if !ok {
		return "", fmt.Errorf("no password for credential ref %q", account.CredentialRef)
	}
	return password, nil
}
