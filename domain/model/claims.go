package model

import "github.com/golang-jwt/jwt"

// TenantClaims is the JWT body accepted by the API. TenantID scopes every request.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	UserName string `json:"user_name,omitempty"`
	jwt.StandardClaims
}
