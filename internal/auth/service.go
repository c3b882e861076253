package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	hmac []byte
	db   *sql.DB

	// fallback admin account from config, usable before any users exist
	adminUser     string
	adminPassHash string
}

func NewAuthService(secret string, db *sql.DB, adminUser, adminPassHash string) *AuthService {
	return &AuthService{hmac: []byte(secret), db: db, adminUser: adminUser, adminPassHash: adminPassHash}
}

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"` // "student", "teacher" or "admin"
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(sub, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "quizrun",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(8 * time.Hour)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("bad claims")
	}
	return c, nil
}

var errBadCredentials = errors.New("invalid credentials")

// Authenticate checks username/password against the users table, falling
// back to the configured admin account. Returns (userID, role).
func (a *AuthService) Authenticate(ctx context.Context, username, password string) (string, string, error) {
	var id, hash, role string
	err := a.db.QueryRowContext(ctx,
		`SELECT id, password_hash, role FROM users WHERE username=$1`, username).
		Scan(&id, &hash, &role)
	switch {
	case err == nil:
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			return "", "", errBadCredentials
		}
		return id, role, nil
	case errors.Is(err, sql.ErrNoRows):
		if username == a.adminUser &&
			bcrypt.CompareHashAndPassword([]byte(a.adminPassHash), []byte(password)) == nil {
			return a.adminUser, "admin", nil
		}
		return "", "", errBadCredentials
	default:
		return "", "", err
	}
}
