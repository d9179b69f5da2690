package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"curanova-server/internal/models"
)

// Claims represents the identity provider's session token claims.
type Claims struct {
	Email     string      `json:"email,omitempty"`
	FirstName string      `json:"given_name,omitempty"`
	LastName  string      `json:"family_name,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenSubject describes the principal a development token is issued for.
type TokenSubject struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Role       models.Role
}

// GenerateToken signs an HS256 session token for subject.
func GenerateToken(subject TokenSubject, secret string, ttl time.Duration) (string, error) {
	if subject.ExternalID == "" {
		return "", fmt.Errorf("subject id is required")
	}
	role := subject.Role
	if role == "" {
		role = models.RolePatient
	}
	now := time.Now()
	claims := &Claims{
		Email:     subject.Email,
		FirstName: subject.FirstName,
		LastName:  subject.LastName,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject.ExternalID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates a JWT token.
func ValidateToken(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	if claims.Role == "" {
		claims.Role = models.RolePatient
	}

	return claims, nil
}
