package ethauth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Kind tags every failure the auth flows can report. It is stored as the
// TextCode of the go-errors value so the HTTP boundary can map it once.
type Kind string

const (
	KindProviderDisabled    Kind = "PROVIDER_DISABLED"
	KindMissingField        Kind = "MISSING_FIELD"
	KindNotFound            Kind = "NOT_FOUND"
	KindAccountNotConfirmed Kind = "ACCOUNT_NOT_CONFIRMED"
	KindAccountBlocked      Kind = "ACCOUNT_BLOCKED"
	KindInvalidSignature    Kind = "INVALID_SIGNATURE"
	KindConflict            Kind = "CONFLICT"
	KindPolicyMisconfigured Kind = "POLICY_MISCONFIGURED"
	KindDownstreamFailure   Kind = "DOWNSTREAM_FAILURE"
)

const (
	metaErrorID = "error_id"
	metaField   = "field"
)

// Stable client-visible error identifiers.
const (
	IDProviderDisabled      = "provider.disabled"
	IDRegisterDisabled      = "Auth.advanced.allow_register"
	IDIdentifierProvide     = "Auth.form.error.email.provide"
	IDPasswordProvide       = "Auth.form.error.password.provide"
	IDAddressProvide        = "Auth.form.error.ethereumAddress.provide"
	IDUsernameProvide       = "Auth.form.error.username.provide"
	IDEmailFormat           = "Auth.form.error.email.format"
	IDInvalidIdentifier     = "Auth.form.error.invalid"
	IDNotConfirmed          = "Auth.form.error.confirmed"
	IDBlocked               = "Auth.form.error.blocked"
	IDSignatureMismatch     = "Auth.form.error.ethaddress.matching"
	IDAddressTaken          = "Auth.form.error.ethereumAddress.taken"
	IDUsernameTaken         = "Auth.form.error.username.taken"
	IDEmailTaken            = "Auth.form.error.email.taken"
	IDRoleNotFound          = "Auth.form.error.role.notFound"
	IDUserNotExist          = "Auth.form.error.user.not-exist"
	IDCodeProvide           = "Auth.form.error.code.provide"
	IDPasswordMatching      = "Auth.form.error.password.matching"
	IDParamsProvide         = "Auth.form.error.params.provide"
	IDTokenInvalid          = "token.invalid"
	IDMissingEmail          = "missing.email"
	IDEmailNotVerified      = "Auth.form.error.email.verified"
	IDWrongEmail            = "wrong.email"
	IDAlreadyConfirmed      = "already.confirmed"
	IDBlockedUser           = "blocked.user"
	IDInternal              = "Auth.error.internal"
	IDEmailDeliveryFailed   = "Auth.error.email.delivery"
	IDNonceUnavailable      = "Auth.error.nonce"
	IDProviderConnectFailed = "Auth.error.provider.connect"
)

func (k Kind) category() goerrors.Category {
	switch k {
	case KindProviderDisabled:
		return goerrors.CategoryAuthz
	case KindMissingField:
		return goerrors.CategoryBadInput
	case KindNotFound:
		return goerrors.CategoryNotFound
	case KindAccountNotConfirmed, KindAccountBlocked, KindInvalidSignature:
		return goerrors.CategoryAuth
	case KindConflict:
		return goerrors.CategoryConflict
	default:
		return goerrors.CategoryInternal
	}
}

func (k Kind) code() int {
	if k == KindDownstreamFailure {
		return goerrors.CodeInternal
	}
	return goerrors.CodeBadRequest
}

// NewError builds a tagged error carrying the client-visible id.
func NewError(kind Kind, id, message string) *goerrors.Error {
	return goerrors.New(message, kind.category()).
		WithTextCode(string(kind)).
		WithCode(kind.code()).
		WithMetadata(map[string]any{metaErrorID: id})
}

// NewFieldError builds a tagged error that also names the offending field.
func NewFieldError(kind Kind, id, message, field string) *goerrors.Error {
	return goerrors.New(message, kind.category()).
		WithTextCode(string(kind)).
		WithCode(kind.code()).
		WithMetadata(map[string]any{metaErrorID: id, metaField: field})
}

// WrapDownstream wraps a storage or delivery failure. The message is kept
// generic, the cause stays available to logs.
func WrapDownstream(err error, id, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(string(KindDownstreamFailure)).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{metaErrorID: id})
}

// KindOf returns the tag of an error produced by this package. Untagged
// errors are reported as downstream failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return Kind(richErr.TextCode)
	}

	return KindDownstreamFailure
}

// IsKind reports whether err carries the given tag
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrorID returns the client-visible identifier of err
func ErrorID(err error) string {
	if v := metadataString(err, metaErrorID); v != "" {
		return v
	}
	return IDInternal
}

// ErrorField returns the input field err refers to, if any
func ErrorField(err error) string {
	return metadataString(err, metaField)
}

func metadataString(err error, key string) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return ""
	}
	s, _ := richErr.Metadata[key].(string)
	return s
}

// errors reported by the flows

func errProviderDisabled() error {
	return NewError(KindProviderDisabled, IDProviderDisabled, "This provider is disabled.")
}

func errRegisterDisabled() error {
	return NewError(KindProviderDisabled, IDRegisterDisabled, "Register action is currently disabled.")
}

func errAccountNotFound() error {
	return NewError(KindNotFound, IDInvalidIdentifier, "There is no account with this Ethereum address.")
}

func errNotConfirmed() error {
	return NewError(KindAccountNotConfirmed, IDNotConfirmed, "Your account email is not confirmed")
}

func errBlocked() error {
	return NewError(KindAccountBlocked, IDBlocked, "Your account has been blocked by an administrator")
}

func errInvalidSignature() error {
	return NewError(KindInvalidSignature, IDSignatureMismatch, "Signature verification failed.")
}

func errAddressTaken() error {
	return NewFieldError(KindConflict, IDAddressTaken, "Ethereum address is already taken.", "ethereumAddress")
}

func errUsernameTaken() error {
	return NewFieldError(KindConflict, IDUsernameTaken, "Username is already taken.", "username")
}

func errEmailTaken() error {
	return NewFieldError(KindConflict, IDEmailTaken, "Email is already taken.", "email")
}

func errAddressOrUsernameTaken() error {
	return NewError(KindConflict, IDAddressTaken, "Ethereum address or username already taken")
}

func errDefaultRoleMissing() error {
	return NewError(KindPolicyMisconfigured, IDRoleNotFound, "Impossible to find the default role.")
}

// ErrTokenMalformed is returned for tokens that cannot be parsed or verified
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned for expired tokens
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

const (
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
	TextCodeTokenExpired   = "TOKEN_EXPIRED"
)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
