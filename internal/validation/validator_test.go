package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"max=5"`
	Kind     string `json:"kind" validate:"oneof=pillow|mat"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		in      signup
		wantErr string
	}{
		{"ok", signup{Email: "a@b.co", Password: "password1", Name: "베개프로"}, ""},
		{"missing email", signup{Password: "password1"}, "email: field is required"},
		{"bad email", signup{Email: "nope", Password: "password1"}, "email: invalid email format"},
		{"short password", signup{Email: "a@b.co", Password: "short"}, "password: minimum is 8"},
		{"long name", signup{Email: "a@b.co", Password: "password1", Name: "침실 베개프로"}, "name: maximum is 5"},
		{"bad kind", signup{Email: "a@b.co", Password: "password1", Kind: "lamp"}, "kind: must be one of pillow, mat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidate_NotAStruct(t *testing.T) {
	assert.Error(t, NewValidator().Validate("x"))
}
