// Package auth guards the admin screens: a server-checked password and a
// signed session cookie.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Geniuskaa/maraton_registration/internal/config"
)

const (
	COOKIE_NAME   = "maraton_admin"
	ISSUER        = "maraton_registration"
	SUBJECT       = "admin"
	MAX_FAILURES  = 5
	FAILURE_TTL   = 10 * time.Minute
	CLEANUP_EVERY = 30 * time.Minute
)

var (
	ErrNotConfigured      = errors.New("admin access is not configured")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrThrottled          = errors.New("too many failed attempts, try later")
	ErrInvalidToken       = errors.New("invalid session")
)

type Authenticator struct {
	hash     []byte
	secret   []byte
	ttl      time.Duration
	failures *cache.Cache
	logger   *zap.Logger
	now      func() time.Time
}

func New(conf config.Admin, logger *zap.Logger) *Authenticator {
	ttl := conf.TokenTTL()
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Authenticator{
		hash:     []byte(conf.PasswordHash),
		secret:   []byte(conf.TokenSecret),
		ttl:      ttl,
		failures: cache.New(FAILURE_TTL, CLEANUP_EVERY),
		logger:   logger,
		now:      time.Now,
	}
}

// HashPassword produces the value expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword failed: %w", err)
	}
	return string(h), nil
}

func (a *Authenticator) Enabled() bool {
	return len(a.hash) > 0 && len(a.secret) > 0
}

// Login checks the password for the client identified by key and returns a
// signed session token.
func (a *Authenticator) Login(key, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrNotConfigured
	}

	if n, ok := a.failures.Get(key); ok && n.(int) >= MAX_FAILURES {
		a.logger.Warn("Admin login throttled", zap.String("client", key))
		return "", time.Time{}, ErrThrottled
	}

	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		if err := a.failures.Add(key, 1, cache.DefaultExpiration); err != nil {
			_, _ = a.failures.IncrementInt(key, 1)
		}
		a.logger.Warn("Admin login failed", zap.String("client", key))
		return "", time.Time{}, ErrInvalidCredentials
	}

	a.failures.Delete(key)

	now := a.now()
	expires := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    ISSUER,
		Subject:   SUBJECT,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("SignedString failed: %w", err)
	}

	a.logger.Info("Admin logged in", zap.String("client", key))
	return token, expires, nil
}

func (a *Authenticator) Verify(token string) error {
	if !a.Enabled() {
		return ErrNotConfigured
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ISSUER),
		jwt.WithSubject(SUBJECT),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// SetCookie stores the session token for the admin routes.
func (a *Authenticator) SetCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     COOKIE_NAME,
		Value:    token,
		Path:     "/admin",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     COOKIE_NAME,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Middleware lets through requests with a valid session and sends the rest
// to loginPath.
func (a *Authenticator) Middleware(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(COOKIE_NAME)
			if err == nil {
				err = a.Verify(c.Value)
			}
			if err != nil {
				if r.Method == http.MethodGet {
					http.Redirect(w, r, loginPath, http.StatusSeeOther)
					return
				}
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
