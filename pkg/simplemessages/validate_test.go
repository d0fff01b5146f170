package simplemessages_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-messages/pkg/simplemessages"
)

func TestValidator_Validate(t *testing.T) {
	v := simplemessages.NewValidator(simplemessages.Limits{})

	valid := simplemessages.Fields{
		DisplayName:  "Ada Lovelace",
		ContactEmail: "ada@example.com",
		MessageBody:  "Hello there",
	}

	tests := []struct {
		name      string
		input     simplemessages.Fields
		want      simplemessages.Fields
		wantErr   error
		wantField string
	}{
		{
			name:  "valid",
			input: valid,
			want:  valid,
		},
		{
			name: "strips controls and surrounding whitespace",
			input: simplemessages.Fields{
				DisplayName:  "  Ada \t Lovelace\x00 ",
				ContactEmail: "\n ada@example.com \r",
				MessageBody:  "\x07 line one\r\nline two\rline three\x1b \n",
			},
			want: simplemessages.Fields{
				DisplayName:  "Ada Lovelace",
				ContactEmail: "ada@example.com",
				MessageBody:  "line one\nline two\nline three",
			},
		},
		{
			name:      "missing display name",
			input:     simplemessages.Fields{DisplayName: " \t ", ContactEmail: valid.ContactEmail, MessageBody: valid.MessageBody},
			wantErr:   simplemessages.ErrMissingField,
			wantField: simplemessages.FieldDisplayName,
		},
		{
			name:      "missing email",
			input:     simplemessages.Fields{DisplayName: valid.DisplayName, MessageBody: valid.MessageBody},
			wantErr:   simplemessages.ErrMissingField,
			wantField: simplemessages.FieldContactEmail,
		},
		{
			name:      "missing message",
			input:     simplemessages.Fields{DisplayName: valid.DisplayName, ContactEmail: valid.ContactEmail, MessageBody: "\x00\x01"},
			wantErr:   simplemessages.ErrMissingField,
			wantField: simplemessages.FieldMessageBody,
		},
		{
			name:      "first failure wins",
			input:     simplemessages.Fields{ContactEmail: "not-an-email", MessageBody: strings.Repeat("x", 6000)},
			wantErr:   simplemessages.ErrMissingField,
			wantField: simplemessages.FieldDisplayName,
		},
		{
			name:      "invalid email",
			input:     simplemessages.Fields{DisplayName: valid.DisplayName, ContactEmail: "not-an-email", MessageBody: valid.MessageBody},
			wantErr:   simplemessages.ErrInvalidEmail,
			wantField: simplemessages.FieldContactEmail,
		},
		{
			name:      "name too long",
			input:     simplemessages.Fields{DisplayName: strings.Repeat("a", 201), ContactEmail: valid.ContactEmail, MessageBody: valid.MessageBody},
			wantErr:   simplemessages.ErrFieldTooLong,
			wantField: simplemessages.FieldDisplayName,
		},
		{
			name:      "message too long",
			input:     simplemessages.Fields{DisplayName: valid.DisplayName, ContactEmail: valid.ContactEmail, MessageBody: strings.Repeat("m", 5001)},
			wantErr:   simplemessages.ErrFieldTooLong,
			wantField: simplemessages.FieldMessageBody,
		},
		{
			name:      "email too long",
			input:     simplemessages.Fields{DisplayName: valid.DisplayName, ContactEmail: strings.Repeat("e", 250) + "@example.com", MessageBody: valid.MessageBody},
			wantErr:   simplemessages.ErrFieldTooLong,
			wantField: simplemessages.FieldContactEmail,
		},
		{
			name:  "length counts characters not bytes",
			input: simplemessages.Fields{DisplayName: strings.Repeat("é", 200), ContactEmail: valid.ContactEmail, MessageBody: valid.MessageBody},
			want:  simplemessages.Fields{DisplayName: strings.Repeat("é", 200), ContactEmail: valid.ContactEmail, MessageBody: valid.MessageBody},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.input)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var ve *simplemessages.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Equal(t, simplemessages.Fields{}, got)
		})
	}
}

func TestValidator_NoSilentTruncation(t *testing.T) {
	v := simplemessages.NewValidator(simplemessages.Limits{MaxDisplayName: 5})

	_, err := v.Validate(simplemessages.Fields{
		DisplayName:  "abcdef",
		ContactEmail: "a@example.com",
		MessageBody:  "hi",
	})
	require.Error(t, err)

	var ve *simplemessages.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, int64(5), ve.Limit)
	assert.Equal(t, "display_name is too long (max 5 characters)", err.Error())
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"ada@example.com", true},
		{"first.last+tag@sub.example.co.uk", true},
		{"not-an-email", false},
		{"ada@localhost", false},
		{"@example.com", false},
		{"ada@", false},
		{"ada@.example.com", false},
		{"ada@example.com.", false},
		{"ada@example..com", false},
		{"Ada <ada@example.com>", false},
		{"ada@example.com, bob@example.com", false},
		{"ada lovelace@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.valid, simplemessages.ValidEmail(tt.email))
		})
	}
}

func TestValidationError_IsClientError(t *testing.T) {
	err := &simplemessages.ValidationError{Field: simplemessages.FieldContactEmail, Err: simplemessages.ErrInvalidEmail}
	assert.True(t, simplemessages.IsValidationError(err))
	assert.Equal(t, "contact_email: invalid email", err.Error())

	missing := &simplemessages.ValidationError{Field: simplemessages.FieldDisplayName, Err: simplemessages.ErrMissingField}
	assert.Equal(t, "display_name is required", missing.Error())

	assert.False(t, simplemessages.IsValidationError(simplemessages.ErrStoreUnavailable))
}
