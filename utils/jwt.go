package utils

import (
	"errors"
	"os"
	"time"

	"contratto/config"
	"contratto/models"

	"github.com/golang-jwt/jwt"
)

func secretKey() []byte {
	if config.AppConfig.JWTSecret != "" {
		return []byte(config.AppConfig.JWTSecret)
	}
	return []byte(os.Getenv("JWT_SECRET"))
}

// GenerateToken creates a signed JWT carrying the caller's identity.
// The token expires after the specified duration.
func GenerateToken(id models.Identity, duration time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   id.UserID,
		"email": id.Email,
		"role":  id.Role,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(duration).Unix(),
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}
	if id.Phone != "" {
		claims["phone"] = id.Phone
	}
	if id.TaxID != "" {
		claims["tax_id"] = id.TaxID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey())
}

// ValidateToken parses and validates a token string and returns the token if valid.
func ValidateToken(tokenString string) (*jwt.Token, error) {
	key := secretKey()
	if len(key) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure that the token's signing method is HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	})
}

// IdentityFromToken validates the token and maps its claims to an Identity.
func IdentityFromToken(tokenString string) (models.Identity, error) {
	token, err := ValidateToken(tokenString)
	if err != nil {
		return models.Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Identity{}, errors.New("invalid token")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return models.Identity{}, errors.New("token does not contain a valid 'sub' claim")
	}

	id := models.Identity{UserID: sub}
	id.Email, _ = claims["email"].(string)
	id.Role, _ = claims["role"].(string)
	id.Name, _ = claims["name"].(string)
	id.Phone, _ = claims["phone"].(string)
	id.TaxID, _ = claims["tax_id"].(string)
	if id.Role == "" {
		id.Role = models.RoleUser
	}
	return id, nil
}
