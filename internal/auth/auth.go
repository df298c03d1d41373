// Package auth implements SPEC_FULL.md's Protected-route gate: HTTP Basic
// credential checking via golang.org/x/crypto/bcrypt (teacher dep, carried
// from its own credential-hashing paths), and short-lived upload tickets
// via github.com/golang-jwt/jwt/v4 (teacher dep) so a client that already
// authenticated once doesn't need to resend a password on every chunk of a
// large multi-request upload.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package auth

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// CheckBasic verifies an "Authorization: Basic base64(user:pass)" header
// value against users (username -> bcrypt hash). Returns false on any
// malformed header or unknown user, never distinguishing the reason (to
// avoid a user-enumeration oracle via timing or error text).
func CheckBasic(headerValue string, users map[string]string) bool {
	const prefix = "Basic "
	if !strings.HasPrefix(headerValue, prefix) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(headerValue[len(prefix):])
	if err != nil {
		return false
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return false
	}
	hash, ok := users[parts[0]]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(parts[1])) == nil
}

type uploadClaims struct {
	Route string `json:"route"`
	jwt.RegisteredClaims
}

// IssueUploadTicket mints a short-lived HMAC-signed ticket scoping a client
// to uploads on a single configured route, so subsequent requests in the
// same session can skip re-sending Basic credentials.
func IssueUploadTicket(secret []byte, route string, ttl time.Duration) (string, error) {
	claims := uploadClaims{
		Route: route,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyUploadTicket checks a ticket minted by IssueUploadTicket and
// returns the route it authorizes.
func VerifyUploadTicket(secret []byte, ticket string) (route string, ok bool) {
	parsed, err := jwt.ParseWithClaims(ticket, &uploadClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	claims, ok := parsed.Claims.(*uploadClaims)
	if !ok {
		return "", false
	}
	return claims.Route, true
}
