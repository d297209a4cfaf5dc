package control

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const contextKeyAuthenticated = "control_authenticated"

// TokenManager mints and verifies the single-operator session JWT,
// the same HS256 shape as the teacher's auth.JWTManager scaled down to
// one role: there is no user ID, tier, or admin flag to carry, only a
// session expiry.
type TokenManager struct {
	secret         []byte
	tokenDuration  time.Duration
	operatorHash   []byte // bcrypt hash of the configured CONTROL_TOKEN
}

// NewTokenManager builds a TokenManager. operatorToken is the plaintext
// static token configured via CONTROL_TOKEN; it is bcrypt-hashed once
// here and never stored in plaintext beyond this call.
func NewTokenManager(jwtSecret, operatorToken string, tokenDuration time.Duration) (*TokenManager, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(operatorToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("control: hash operator token: %w", err)
	}
	return &TokenManager{
		secret:        []byte(jwtSecret),
		tokenDuration: tokenDuration,
		operatorHash:  hash,
	}, nil
}

// operatorClaims is the JWT payload for an authenticated operator
// session; there is exactly one role, so it carries nothing beyond the
// registered claims.
type operatorClaims struct {
	jwt.RegisteredClaims
}

// Login verifies candidateToken against the configured operator token
// and mints a session JWT valid for tokenDuration.
func (m *TokenManager) Login(candidateToken string) (string, error) {
	if bcrypt.CompareHashAndPassword(m.operatorHash, []byte(candidateToken)) != nil {
		return "", fmt.Errorf("control: invalid operator token")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			Issuer:    "equities-trader",
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("control: sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session JWT.
func (m *TokenManager) Validate(tokenString string) error {
	parsed, err := jwt.ParseWithClaims(tokenString, &operatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return fmt.Errorf("control: invalid session token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("control: session token not valid")
	}
	return nil
}

// Middleware rejects any request without a valid Bearer session token.
func (m *TokenManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			return
		}

		if err := m.Validate(parts[1]); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(contextKeyAuthenticated, true)
		c.Next()
	}
}
