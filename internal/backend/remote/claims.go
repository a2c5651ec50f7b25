package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims はアクセストークンから読み取る値。
type accessClaims struct {
	subject   string
	email     string
	expiresAt time.Time
}

// tokenClaims はSupabaseのアクセストークンのクレーム。
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// parseAccessToken は署名を検証せずにクレームを読み取る。
// 署名の検証はトークンを受け取るサービス側が行う。
func parseAccessToken(token string) (accessClaims, error) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return accessClaims{}, fmt.Errorf("failed to parse access token: %w", err)
	}

	out := accessClaims{
		subject: claims.Subject,
		email:   claims.Email,
	}
	if claims.ExpiresAt != nil {
		out.expiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}
