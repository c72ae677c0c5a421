package auth

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

var errInvalidEmail = errors.New("invalid email address")

// normalizeEmail はメールアドレスを前後空白除去・小文字化し、
// ドメイン部をIDNAのASCII表現に変換する。
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "", errInvalidEmail
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return "", errInvalidEmail
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil || !strings.Contains(ascii, ".") {
		return "", errInvalidEmail
	}
	return local + "@" + ascii, nil
}

// emailDomain はログ用にドメイン部のみを返す。
func emailDomain(email string) string {
	_, domain, _ := strings.Cut(email, "@")
	return domain
}
