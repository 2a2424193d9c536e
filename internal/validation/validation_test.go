package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassword_Validate(t *testing.T) {
	v := NewPassword(0)

	tests := []struct {
		name     string
		password string
		want     []string
	}{
		{name: "valid", password: "Passw0rd1", want: nil},
		{name: "too short", password: "Pa1", want: []string{"Password is too short, must be at least 8 characters long"}},
		{name: "no lowercase", password: "PASSW0RD1", want: []string{MsgPasswordNoLowercase}},
		{name: "no uppercase", password: "passw0rd1", want: []string{MsgPasswordNoUppercase}},
		{name: "no digit", password: "Password", want: []string{MsgPasswordNoDigit}},
		{
			name:     "everything wrong",
			password: "",
			want: []string{
				"Password is too short, must be at least 8 characters long",
				MsgPasswordNoLowercase,
				MsgPasswordNoUppercase,
				MsgPasswordNoDigit,
			},
		},
		{name: "unicode letters count", password: "Ünïcödé1", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Validate(tt.password))
		})
	}
}

func TestPassword_CustomMinLength(t *testing.T) {
	got := NewPassword(12).Validate("Passw0rd1")
	assert.Equal(t, []string{"Password is too short, must be at least 12 characters long"}, got)
}

func TestEmail_Validate(t *testing.T) {
	tests := []struct {
		email string
		want  []string
	}{
		{email: "a@b.co", want: nil},
		{email: "first.last@example.info", want: nil},
		{email: "ab.co", want: []string{MsgEmailNoAt}},
		{email: "a@bco", want: []string{MsgEmailNoDots, MsgEmailNoSecondLevel}},
		{email: "a@b.c", want: []string{MsgEmailTLDLength}},
		{email: "a@b.museum", want: []string{MsgEmailTLDLength}},
		{email: "a@.com", want: []string{MsgEmailNoSecondLevel}},
		{email: "@b.co", want: []string{MsgEmailAtAtBeginning}},
		{email: "a.b@c", want: []string{MsgEmailNoSecondLevel}},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, Email{}.Validate(tt.email))
		})
	}
}
