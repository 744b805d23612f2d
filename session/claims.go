package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be read out of a JWT access token without the
// provider's keys. It is for display only and must not be used for
// authorization decisions.
type TokenInfo struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

// InspectToken parses token as an unverified JWT. ok is false for opaque
// tokens.
func InspectToken(token string) (info TokenInfo, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, false
	}

	info.Subject, _ = claims.GetSubject()
	info.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, true
}
