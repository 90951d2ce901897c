package admission

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// UserFromToken extracts the user ID (subject claim) from a signed bearer
// token. Call sites that receive a token rather than a resolved user ID can
// use it to key admission checks. This is identity resolution only, not an
// authentication layer: the embedding application owns token issuance and
// full claim validation.
func UserFromToken(tokenString string, keyFunc jwt.Keyfunc) (string, error) {
	token, err := jwt.Parse(tokenString, keyFunc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrMissingSubject
	}

	return subject, nil
}
