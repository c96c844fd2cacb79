// Package auth secures the dashboard API. The bot is single-operator:
// one configured username and bcrypt password hash, JWT access tokens for
// the browser session.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Config holds the operator credentials and token settings
type Config struct {
	Username        string        `json:"username" yaml:"username"`
	PasswordHash    string        `json:"password_hash" yaml:"password_hash"` // bcrypt
	JWTSecret       string        `json:"jwt_secret" yaml:"jwt_secret"`
	AccessDuration  time.Duration `json:"access_duration" yaml:"access_duration"`
	RefreshDuration time.Duration `json:"refresh_duration" yaml:"refresh_duration"`
}

// UserClaims is what ends up inside the JWT
type UserClaims struct {
	Username string `json:"username"`
}

// Claims pairs our claims with the registered set
type Claims struct {
	UserClaims
	jwt.RegisteredClaims
}

// TokenPair is the login response
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Service verifies credentials and mints tokens. Refresh tokens live in
// memory only; a restart logs the operator out.
type Service struct {
	cfg    Config
	secret []byte

	mu      sync.Mutex
	refresh map[string]time.Time
}

// NewService creates the auth service
func NewService(cfg Config) *Service {
	if cfg.AccessDuration <= 0 {
		cfg.AccessDuration = 15 * time.Minute
	}
	if cfg.RefreshDuration <= 0 {
		cfg.RefreshDuration = 7 * 24 * time.Hour
	}
	return &Service{
		cfg:     cfg,
		secret:  []byte(cfg.JWTSecret),
		refresh: make(map[string]time.Time),
	}
}

// HashPassword produces a bcrypt hash for config provisioning
func HashPassword(password string) (string, error) {
	raw, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(raw), nil
}

// Login checks the operator credentials and returns a token pair
func (s *Service) Login(username, password string) (*TokenPair, error) {
	if username != s.cfg.Username {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.tokenPair(UserClaims{Username: username})
}

// Refresh exchanges a valid refresh token for a new pair. Tokens are
// single use.
func (s *Service) Refresh(refreshToken string) (*TokenPair, error) {
	s.mu.Lock()
	expiry, ok := s.refresh[refreshToken]
	delete(s.refresh, refreshToken)
	s.mu.Unlock()
	if !ok || time.Now().After(expiry) {
		return nil, ErrInvalidToken
	}
	return s.tokenPair(UserClaims{Username: s.cfg.Username})
}

func (s *Service) tokenPair(claims UserClaims) (*TokenPair, error) {
	access, err := s.generateAccessToken(claims)
	if err != nil {
		return nil, err
	}
	refresh, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.refresh[refresh] = time.Now().Add(s.cfg.RefreshDuration)
	s.mu.Unlock()

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessDuration.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (s *Service) generateAccessToken(claims UserClaims) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "trading-bot",
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func generateRefreshToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// ValidateAccessToken parses and verifies a token, returning its claims
func (s *Service) ValidateAccessToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims.UserClaims, nil
}
