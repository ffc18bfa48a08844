package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bark-labs/sitepush/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer = "sitepush-agent"

	defaultOperator  = "admin"
	defaultPassword  = "admin123"
	defaultJWTSecret = "sitepush-default-secret"
	defaultTokenTTL  = 12 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims is the operator token payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthService guards the operator endpoints of the agent with a JWT.
// The configured password may be plain text or a bcrypt hash.
type AuthService struct {
	enabled  bool
	operator string
	verify   func(password string) bool
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthService builds AuthService from the auth section of cfg.
func NewAuthService(cfg *config.Config) *AuthService {
	ac := cfg.Auth
	ttl := ac.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &AuthService{
		enabled:  ac.Enabled,
		operator: orDefault(ac.Username, defaultOperator),
		verify:   passwordVerifier(orDefault(ac.Password, defaultPassword)),
		secret:   []byte(orDefault(ac.JWTSecret, defaultJWTSecret)),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (a *AuthService) Enabled() bool {
	return a != nil && a.enabled
}

// Username returns the configured operator name.
func (a *AuthService) Username() string {
	if a == nil {
		return ""
	}
	return a.operator
}

// Authenticate checks operator credentials and issues a signed token.
// With auth disabled it returns an empty token and no error.
func (a *AuthService) Authenticate(username, password string) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	nameOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(a.operator)) == 1
	if !a.verify(password) || !nameOK {
		return "", ErrInvalidCredentials
	}
	issued := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: a.operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   a.operator,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(a.ttl)),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, algorithm, issuer and expiry.
func (a *AuthService) Validate(raw string) (*Claims, error) {
	if !a.Enabled() {
		return &Claims{Username: "anonymous"}, nil
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, a.signingKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func (a *AuthService) signingKey(*jwt.Token) (any, error) {
	return a.secret, nil
}

func passwordVerifier(configured string) func(string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(configured, prefix) {
			hash := []byte(configured)
			return func(input string) bool {
				return bcrypt.CompareHashAndPassword(hash, []byte(input)) == nil
			}
		}
	}
	return func(input string) bool {
		return subtle.ConstantTimeCompare([]byte(input), []byte(configured)) == 1
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
