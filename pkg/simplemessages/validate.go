package simplemessages

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits bounds the size of submitted fields and media.
// Text limits count characters (runes), not bytes.
type Limits struct {
	MaxDisplayName  int
	MaxContactEmail int
	MaxMessageBody  int
	MaxMediaBytes   int64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxDisplayName:  200,
		MaxContactEmail: 254, // RFC 5321
		MaxMessageBody:  5000,
		MaxMediaBytes:   5 << 20, // 5MB
	}
}

// WithDefaults replaces zero or negative limits with DefaultLimits values.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxDisplayName <= 0 {
		l.MaxDisplayName = d.MaxDisplayName
	}
	if l.MaxContactEmail <= 0 {
		l.MaxContactEmail = d.MaxContactEmail
	}
	if l.MaxMessageBody <= 0 {
		l.MaxMessageBody = d.MaxMessageBody
	}
	if l.MaxMediaBytes <= 0 {
		l.MaxMediaBytes = d.MaxMediaBytes
	}
	return l
}

// Fields holds the text fields of a submission, raw or normalized.
type Fields struct {
	DisplayName  string
	ContactEmail string
	MessageBody  string
}

// Validator normalizes and checks submission text fields. It has no side effects.
type Validator struct {
	limits Limits
}

// NewValidator creates a validator. Zero limits fall back to DefaultLimits.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits.WithDefaults()}
}

// Validate returns the normalized fields or a *ValidationError.
//
// Rules run in order and the first failure wins: normalization, required
// fields, email syntax, length bounds. Values are never truncated.
func (v *Validator) Validate(raw Fields) (Fields, error) {
	f := Fields{
		DisplayName:  normalizeLine(raw.DisplayName),
		ContactEmail: normalizeLine(raw.ContactEmail),
		MessageBody:  normalizeText(raw.MessageBody),
	}

	for _, c := range []struct {
		field string
		value string
	}{
		{FieldDisplayName, f.DisplayName},
		{FieldContactEmail, f.ContactEmail},
		{FieldMessageBody, f.MessageBody},
	} {
		if c.value == "" {
			return Fields{}, &ValidationError{Field: c.field, Err: ErrMissingField}
		}
	}

	if !ValidEmail(f.ContactEmail) {
		return Fields{}, &ValidationError{Field: FieldContactEmail, Err: ErrInvalidEmail}
	}

	for _, c := range []struct {
		field string
		value string
		limit int
	}{
		{FieldDisplayName, f.DisplayName, v.limits.MaxDisplayName},
		{FieldContactEmail, f.ContactEmail, v.limits.MaxContactEmail},
		{FieldMessageBody, f.MessageBody, v.limits.MaxMessageBody},
	} {
		if utf8.RuneCountInString(c.value) > c.limit {
			return Fields{}, &ValidationError{Field: c.field, Limit: int64(c.limit), Err: ErrFieldTooLong}
		}
	}

	return f, nil
}

// ValidEmail reports whether s is a bare address of the form local@domain
// with at least one dot inside the domain.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.Contains(domain, "..") {
		return false
	}
	return !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// normalizeLine prepares a single-line field: whitespace controls become
// spaces, other control characters are dropped, runs of whitespace collapse.
func normalizeLine(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// normalizeText prepares the multi-line message body. Line feeds and tabs
// survive; CRLF and lone CR become LF.
func normalizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
