package validation

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin/binding"
)

type account struct {
	Username        string `json:"username" binding:"required,min=3,max=50,username"`
	Email           string `json:"email" binding:"required,max=255,email"`
	Password        string `json:"password" binding:"required,min=8,max=128,password"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required,eqfield=Password"`
}

func validAccount() account {
	return account{
		Username:        "ann_b-2",
		Email:           "ann@example.edu",
		Password:        "Secr3t!pw",
		PasswordConfirm: "Secr3t!pw",
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if verr.Message == "" {
		t.Fatalf("empty message for field %s", verr.Field)
	}
	return verr.Field
}

func TestStructAcceptsValidAccount(t *testing.T) {
	if err := Struct(validAccount()); err != nil {
		t.Fatalf("Struct: %v", err)
	}
}

func TestStructUsername(t *testing.T) {
	for _, bad := range []string{"", "ab", "ann b", "ann;drop", "<b>", "josé"} {
		a := validAccount()
		a.Username = bad
		if field := fieldOf(t, Struct(a)); field != "username" {
			t.Errorf("Username %q reported on %s", bad, field)
		}
	}
}

func TestStructEmail(t *testing.T) {
	for _, bad := range []string{"", "ann", "ann@", "a b@example.com"} {
		a := validAccount()
		a.Email = bad
		if field := fieldOf(t, Struct(a)); field != "email" {
			t.Errorf("Email %q reported on %s", bad, field)
		}
	}
}

func TestStructPassword(t *testing.T) {
	cases := []struct {
		password, confirm, field string
	}{
		{"short1!", "short1!", "password"},
		{"alllower1!", "alllower1!", "password"},
		{"NoDigits!!", "NoDigits!!", "password"},
		{"NoSpecial11", "NoSpecial11", "password"},
		{"Has Space1!", "Has Space1!", "password"},
		{"Secr3t!pw", "Secr3t!pX", "passwordConfirm"},
		{"Secr3t!pw", "", "passwordConfirm"},
	}
	for _, tc := range cases {
		a := validAccount()
		a.Password, a.PasswordConfirm = tc.password, tc.confirm
		if field := fieldOf(t, Struct(a)); field != tc.field {
			t.Errorf("Password(%q, %q) reported on %s, want %s", tc.password, tc.confirm, field, tc.field)
		}
	}
}

func TestFromBindingIgnoresOtherErrors(t *testing.T) {
	if verr := FromBinding(errors.New("unexpected EOF")); verr != nil {
		t.Fatalf("expected nil, got %+v", verr)
	}

	err := binding.Validator.ValidateStruct(account{})
	if verr := FromBinding(err); verr == nil || verr.Field != "username" {
		t.Fatalf("expected username failure first, got %+v", verr)
	}
}
