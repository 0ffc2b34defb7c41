package ethauth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// fieldRule maps a failing request field to the error reported for it
type fieldRule struct {
	field   string
	id      string
	message string
}

// LoginRequest payload. Password carries the signature for the local
// provider.
type LoginRequest struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
	return toFieldError(err,
		fieldRule{"identifier", IDIdentifierProvide, "Please provide your ethereum address, username or your e-mail."},
		fieldRule{"password", IDPasswordProvide, "Please provide your password."},
	)
}

// RegisterRequest payload
type RegisterRequest struct {
	EthereumAddress string `json:"ethereumAddress" form:"ethereumAddress"`
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.EthereumAddress, validation.Required),
		validation.Field(&r.Username, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.Match(emailRegExp)),
	)
	return toFieldError(err,
		fieldRule{"ethereumAddress", IDAddressProvide, "Please provide your Ethereum Address."},
		fieldRule{"username", IDUsernameProvide, "Please provide your username."},
		fieldRule{"email", IDEmailFormat, "Please provide valid email address."},
	)
}

// Message converts the payload to the registration command message
func (r RegisterRequest) Message() RegisterUserMessage {
	return RegisterUserMessage{
		EthereumAddress: r.EthereumAddress,
		Username:        r.Username,
		Email:           r.Email,
	}
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Match(emailRegExp)),
	)
	return toFieldError(err,
		fieldRule{"email", IDEmailFormat, "Please provide valid email address."},
	)
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Code                 string `json:"code" form:"code"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"passwordConfirmation" form:"passwordConfirmation"`
}

// Validate will run validation rules. Mismatching passwords are reported
// before missing params.
func (r ResetPasswordRequest) Validate() error {
	if r.Password != "" && r.PasswordConfirmation != "" && r.Password != r.PasswordConfirmation {
		return NewFieldError(KindMissingField, IDPasswordMatching, "Passwords do not match.", "passwordConfirmation")
	}

	err := validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.PasswordConfirmation, validation.Required),
	)
	return toFieldError(err,
		fieldRule{"code", IDParamsProvide, "Incorrect params provided."},
		fieldRule{"password", IDParamsProvide, "Incorrect params provided."},
		fieldRule{"passwordConfirmation", IDParamsProvide, "Incorrect params provided."},
	)
}

// SendEmailConfirmationRequest payload
type SendEmailConfirmationRequest struct {
	Email string `json:"email" form:"email"`
}

// Validate will run validation rules
func (r SendEmailConfirmationRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return NewFieldError(KindMissingField, IDMissingEmail, "missing.email", "email")
	}
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Match(emailRegExp)),
	)
	return toFieldError(err,
		fieldRule{"email", IDWrongEmail, "wrong.email"},
	)
}

// toFieldError reports the first failing field in rules order as a
// MissingField error.
func toFieldError(err error, rules ...fieldRule) error {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return NewError(KindMissingField, IDParamsProvide, err.Error())
	}

	for _, rule := range rules {
		if _, ok := verrs[rule.field]; ok {
			return NewFieldError(KindMissingField, rule.id, rule.message, rule.field)
		}
	}

	return NewError(KindMissingField, IDParamsProvide, err.Error())
}
