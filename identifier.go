package ethauth

import (
	"regexp"
	"strings"
)

var emailRegExp = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// IsEmail reports whether s matches the strict email grammar used to
// classify login identifiers.
func IsEmail(s string) bool {
	return emailRegExp.MatchString(s)
}

// NormalizeAddress lowercases an Ethereum address so lookups are case
// insensitive (checksummed and plain forms resolve to the same account).
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeEmail lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IdentifierKind tells how a login identifier was classified
type IdentifierKind int

const (
	IdentifierAddress IdentifierKind = iota
	IdentifierEmail
)

// ClassifyIdentifier normalizes identifier and reports whether it is an
// email or an Ethereum address.
func ClassifyIdentifier(identifier string) (string, IdentifierKind) {
	trimmed := strings.TrimSpace(identifier)
	if IsEmail(trimmed) {
		return NormalizeEmail(trimmed), IdentifierEmail
	}
	return NormalizeAddress(trimmed), IdentifierAddress
}
