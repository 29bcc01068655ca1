package utils

import (
	"time"

	"github.com/golang-jwt/jwt"

	"growth-automation/domain/model"
	"growth-automation/infrastructure/logger"
)

func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// GenerateTenantToken issues the HS256 bearer token accepted by the API for one tenant.
func GenerateTenantToken(tenantID, userName, secretKey string, ttl time.Duration) (string, error) {
	now := GetCurrentTime()
	claims := model.TenantClaims{
		TenantID: tenantID,
		UserName: userName,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while generate token")
		return "", err
	}
	return tokenString, nil
}
