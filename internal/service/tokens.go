package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/model"
)

const tokenIssuer = "vitrine"

// TokenClass selects the key and lifetime a session token is signed with.
type TokenClass string

const (
	AccessToken  TokenClass = "access"
	RefreshToken TokenClass = "refresh"
)

// Principal is the identity resolved from a verified token.
type Principal struct {
	SubjectID string     `json:"subject_id"`
	Role      model.Role `json:"role"`
}

// TokenPair is an access token with its matching refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type sessionClaims struct {
	Role model.Role `json:"role"`
	Type TokenClass `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies stateless HS256 session tokens. Access and
// refresh tokens are signed with different keys.
type TokenService struct {
	keys map[TokenClass][]byte
	ttls map[TokenClass]time.Duration
	now  func() time.Time
}

// NewTokenService builds a TokenService from the auth settings. now may be nil,
// in which case time.Now is used.
func NewTokenService(cfg config.AuthSettings, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		keys: map[TokenClass][]byte{
			AccessToken:  []byte(cfg.AccessSecret),
			RefreshToken: []byte(cfg.RefreshSecret),
		},
		ttls: map[TokenClass]time.Duration{
			AccessToken:  cfg.AccessTTL,
			RefreshToken: cfg.RefreshTTL,
		},
		now: now,
	}
}

// TTL returns the configured lifetime for tokens of class c.
func (s *TokenService) TTL(c TokenClass) time.Duration {
	return s.ttls[c]
}

// Issue signs a new access and refresh token for subjectID.
func (s *TokenService) Issue(subjectID string, role model.Role) (*TokenPair, error) {
	now := s.now()

	access, accessExp, err := s.sign(AccessToken, subjectID, role, now)
	if err != nil {
		return nil, internalError("sign access token", err)
	}
	refresh, refreshExp, err := s.sign(RefreshToken, subjectID, role, now)
	if err != nil {
		return nil, internalError("sign refresh token", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) sign(class TokenClass, subjectID string, role model.Role, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.ttls[class])
	claims := sessionClaims{
		Role: role,
		Type: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    tokenIssuer,
			ID:        uuid.Must(uuid.NewV7()).String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.keys[class])
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks a token of the given class. It fails with ErrTokenExpired
// once the expiry has passed and with ErrTokenInvalid for anything else that
// is wrong with it.
func (s *TokenService) Verify(token string, class TokenClass) (*Principal, error) {
	key, ok := s.keys[class]
	if !ok {
		return nil, internalError("verify token", fmt.Errorf("unknown token class %q", class))
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims.Type != class || claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrTokenInvalid
	}
	return &Principal{SubjectID: claims.Subject, Role: claims.Role}, nil
}

// Rotate verifies a refresh token and issues a fresh pair for the same
// subject and role. The presented token stays valid until it expires.
func (s *TokenService) Rotate(refreshToken string) (*Principal, *TokenPair, error) {
	p, err := s.Verify(refreshToken, RefreshToken)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.Issue(p.SubjectID, p.Role)
	if err != nil {
		return nil, nil, err
	}
	return p, pair, nil
}
