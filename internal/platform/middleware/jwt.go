package middleware

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "genba/pkg/domain"
	"genba/pkg/requestcontext"
)

// Claims is the identity carried by a validated token.
type Claims struct {
	UserID id.UserID
	Role   requestcontext.UserRole
}

// JWTValidator validates HMAC-signed bearer tokens.
type JWTValidator struct {
	key []byte
}

func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{key: []byte(signingKey)}
}

func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("token missing subject: %w", err)
	}
	userID, err := id.ParseUserID(sub)
	if err != nil {
		return nil, fmt.Errorf("token subject is not a user id: %w", err)
	}

	role, _ := claims["role"].(string)
	switch requestcontext.UserRole(role) {
	case requestcontext.RoleWorker, requestcontext.RoleSupervisor:
	default:
		return nil, fmt.Errorf("token carries unknown role %q", role)
	}

	return &Claims{UserID: userID, Role: requestcontext.UserRole(role)}, nil
}

// SignToken mints a token for the given identity. Used by tests and by
// operational tooling; the service itself never issues tokens.
func SignToken(signingKey string, userID id.UserID, role requestcontext.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(signingKey))
}
