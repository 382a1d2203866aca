package rpc

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	scopeAirdrop = "airdrop"
	scopeClaim   = "scope"
	jwtLeeway    = 2 * time.Minute
)

// authenticator guards admin methods. A configured JWT secret takes
// precedence over the static token.
type authenticator struct {
	token  string
	secret []byte
	issuer string
}

func newAuthenticator(token, secret, issuer string) *authenticator {
	return &authenticator{
		token:  strings.TrimSpace(token),
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
	}
}

func (a *authenticator) require(r *http.Request, scope string) *RPCError {
	if a.token == "" && len(a.secret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if len(a.secret) == 0 {
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
		}
		return nil
	}
	claims, err := a.parseToken(token)
	if err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	if !hasScope(claims, scope) {
		return &RPCError{Code: codeForbidden, Message: "insufficient scope", Data: scope}
	}
	return nil
}

func (a *authenticator) parseToken(raw string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(jwtLeeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func hasScope(claims jwt.MapClaims, required string) bool {
	switch v := claims[scopeClaim].(type) {
	case string:
		for _, scope := range strings.Fields(v) {
			if scope == required {
				return true
			}
		}
	case []interface{}:
		for _, item := range v {
			if scope, ok := item.(string); ok && scope == required {
				return true
			}
		}
	}
	return false
}
