package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxPasswordBytes is the longest input bcrypt will hash.
const maxPasswordBytes = 72

const (
	msgNameRequired     = "Name is required"
	msgEmailInvalid     = "Please include a valid email"
	msgPasswordLength   = "Please enter a password with 6 or more characters"
	msgPasswordTooLong  = "Password must be at most 72 bytes"
	msgPasswordRequired = "Password is required"
)

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginInput is the body of a login request. Unlike registration, no
// minimum password length is enforced here.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// fieldMessages maps a struct namespace to the message reported for any
// failed rule on that field.
var fieldMessages = map[string]string{
	"RegisterInput.name":     msgNameRequired,
	"RegisterInput.email":    msgEmailInvalid,
	"RegisterInput.password": msgPasswordLength,
	"LoginInput.email":       msgEmailInvalid,
	"LoginInput.password":    msgPasswordRequired,
}

// Validator checks request inputs and reports all violations at once.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// ValidateRegister normalizes in and returns a *ValidationError when any
// field is rejected.
func (val *Validator) ValidateRegister(in *RegisterInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	fieldErrs, err := val.check(in)
	if err != nil {
		return err
	}
	if len(in.Password) > maxPasswordBytes {
		fieldErrs = append(fieldErrs, FieldError{Msg: msgPasswordTooLong, Param: "password", Location: "body"})
	}
	if len(fieldErrs) > 0 {
		return &ValidationError{Errors: fieldErrs}
	}
	return nil
}

// ValidateLogin normalizes in and returns a *ValidationError when any field
// is rejected.
func (val *Validator) ValidateLogin(in *LoginInput) error {
	in.Email = strings.TrimSpace(in.Email)

	fieldErrs, err := val.check(in)
	if err != nil {
		return err
	}
	if len(fieldErrs) > 0 {
		return &ValidationError{Errors: fieldErrs}
	}
	return nil
}

func (val *Validator) check(in any) ([]FieldError, error) {
	err := val.v.Struct(in)
	if err == nil {
		return nil, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, internal("validate input", err)
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Namespace()]
		if !ok {
			msg = fe.Field() + " is invalid"
		}
		out = append(out, FieldError{Msg: msg, Param: fe.Field(), Location: "body"})
	}
	return out, nil
}
