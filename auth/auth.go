// Package auth gatekeeps write access. Submitters present either Basic
// credentials checked against bcrypt hashes in the users table, or a Bearer
// JWT issued by POST /signin.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store"
)

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = 30 * 24 * time.Hour

// Credentials are the raw values presented by a caller.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Empty reports whether no credentials were presented.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == "" && c.Token == ""
}

// ParseAuthorization reads a Basic or Bearer Authorization header value.
// Unknown schemes and malformed values yield empty credentials.
func ParseAuthorization(header string) Credentials {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return Credentials{}
	}
	value = strings.TrimSpace(value)
	switch strings.ToLower(scheme) {
	case "basic":
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return Credentials{}
		}
		user, pass, ok := strings.Cut(string(raw), ":")
		if !ok {
			return Credentials{}
		}
		return Credentials{Username: user, Password: pass}
	case "bearer":
		return Credentials{Token: value}
	}
	return Credentials{}
}

// Claims extends jwt.RegisteredClaims with application-specific fields.
type Claims struct {
	Username string `json:"username"`
	UserHash string `json:"user_hash"`
	jwt.RegisteredClaims
}

// UserHashFromUsername returns a deterministic HMAC hash for the given username and key.
func UserHashFromUsername(username string, key []byte) string {
	normalized := strings.ToLower(strings.TrimSpace(username))
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashPassword validates username/password input and returns a bcrypt hash for storage.
func HashPassword(username, password string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", errors.New("username is required")
	}
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// UserLookup finds stored users by name.
type UserLookup interface {
	UserByName(ctx context.Context, username string) (*models.User, error)
}

// Authenticator verifies credentials against stored users and the JWT key.
type Authenticator struct {
	users UserLookup
	key   []byte
	now   func() time.Time
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(users UserLookup, key []byte) *Authenticator {
	return &Authenticator{users: users, key: key, now: time.Now}
}

// Authenticate returns the username behind creds or ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	if creds.Token != "" {
		return a.verifyToken(creds.Token)
	}
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return "", ErrUnauthorized
	}
	return a.verifyPassword(ctx, strings.TrimSpace(creds.Username), creds.Password)
}

func (a *Authenticator) verifyPassword(ctx context.Context, username, password string) (string, error) {
	user, err := a.users.UserByName(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("look up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrUnauthorized
	}
	return user.Username, nil
}

func (a *Authenticator) verifyToken(token string) (string, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid {
		return "", ErrUnauthorized
	}
	if !hmac.Equal([]byte(claims.UserHash), []byte(UserHashFromUsername(claims.Username, a.key))) {
		return "", ErrUnauthorized
	}
	return claims.Username, nil
}

// SignIn checks a username and password and returns a signed token valid for TokenTTL.
func (a *Authenticator) SignIn(ctx context.Context, username, password string) (string, error) {
	name, err := a.verifyPassword(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return "", err
	}
	return a.IssueToken(name)
}

// IssueToken signs an HS256 token for username.
func (a *Authenticator) IssueToken(username string) (string, error) {
	claims := &Claims{
		Username: username,
		UserHash: UserHashFromUsername(username, a.key),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(a.now().Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}
