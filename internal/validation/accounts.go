package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const passwordSpecials = "@$!%*?&"

// Account fields are declared with `binding` tags and checked by gin's
// validator engine, both when a handler binds a request and when a
// service calls Struct. The custom tags are registered on that engine.
func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return isUsername(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return isStrongPassword(fl.Field().String())
	})
}

// Struct runs the binding tags of s and reports the first failure as a
// field-level *Error.
func Struct(s any) error {
	if err := binding.Validator.ValidateStruct(s); err != nil {
		if verr := FromBinding(err); verr != nil {
			return verr
		}
		return err
	}
	return nil
}

// FromBinding converts validator failures into an *Error. It returns nil
// for anything else, such as malformed JSON.
func FromBinding(err error) *Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return nil
	}

	fe := fieldErrs[0]
	return &Error{Field: fe.Field(), Message: fieldMessage(fe)}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return "email must be valid"
	case "eqfield":
		return "passwords do not match"
	case "username":
		return "username can only contain letters, numbers, underscore and hyphen"
	case "password":
		return "password must contain at least one uppercase letter, one lowercase letter, one digit, and one special character (" + passwordSpecials + ")"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func isUsername(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

// isStrongPassword requires one character of each class and nothing
// outside letters, digits and the special set.
func isStrongPassword(s string) bool {
	var lower, upper, digit, special bool
	for _, r := range s {
		switch {
		case r > unicode.MaxASCII:
			return false
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}
