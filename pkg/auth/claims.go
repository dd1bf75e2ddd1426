package auth

import (
	"strconv"

	"github.com/cipimmobiliare/cip-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID    int64
	Role      enums.UserRole
	KYCStatus enums.KYCStatus
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID    int64           `json:"user_id"`
	Role      enums.UserRole  `json:"role"`
	KYCStatus enums.KYCStatus `json:"kyc_status"`
	jwt.RegisteredClaims
}

func subjectFor(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
