package server

import (
	"crypto"
	"fmt"
	"strings"

	"cirello.io/goherokuname"
	"github.com/dgrijalva/jwt-go"
)

// Identity is the verified result of a credential. The core never issues
// tokens, it only verifies them.
type Identity struct {
	UserID string
	DisplayName string
	Admin bool
}

// systemActor is used for supervisor initiated transitions so the audit trail
// can tell them apart from user actions.
var systemActor = Identity{UserID: "system", DisplayName: "system", Admin: true}

func parseToken(hmacSecretByte []byte, tokenString string) (*Identity, bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if s, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || s.Hash != crypto.SHA256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return hmacSecretByte, nil
	})
	if err != nil {
		return nil, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, false
	}

	userID, ok := claims["uid"].(string)
	if !ok || userID == "" {
		return nil, false
	}

	identity := &Identity{UserID: userID}

	if username, ok := claims["usn"].(string); ok && username != "" {
		identity.DisplayName = username
	}else{
		// Tokens minted for guest sessions carry no display name
		identity.DisplayName = goherokuname.HaikunateCustom("-", 4, "DfWx9873214560jzrl")
	}

	if admin, ok := claims["adm"].(bool); ok {
		identity.Admin = admin
	}

	return identity, true
}

func parseBearerAuth(hmacSecretByte []byte, auth string) (*Identity, bool) {
	if auth == "" {
		return nil, false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return nil, false
	}
	return parseToken(hmacSecretByte, auth[len(prefix):])
}
