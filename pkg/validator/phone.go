package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the national number is not 9 digits
	ErrInvalidLength = errors.New("phone number must have 9 digits after the country code")

	// ErrInvalidPrefix indicates the number is not on a Rwandan mobile network
	ErrInvalidPrefix = errors.New("phone number must start with 072, 073, 078 or 079")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

const countryCode = "250"

// mobile network prefixes, without the leading 0
var operators = map[string]string{
	"72": "Airtel",
	"73": "Airtel",
	"78": "MTN",
	"79": "MTN",
}

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator normalizes passenger phone numbers
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Normalize validates a Rwandan mobile number and returns it in E.164 form.
// Accepts 0788123456, 0788 123 456, 250788123456 and +250 788-123-456.
func (v *PhoneValidator) Normalize(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	national := v.Sanitize(phone)
	if !phoneRegex.MatchString(national) {
		return "", ErrInvalidFormat
	}
	if len(national) != 9 {
		return "", ErrInvalidLength
	}
	if _, ok := operators[national[:2]]; !ok {
		return "", ErrInvalidPrefix
	}

	return "+" + countryCode + national, nil
}

// Sanitize strips separators and the country or trunk prefix, leaving the
// national significant number
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(phone)
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case strings.HasPrefix(phone, countryCode) && len(phone) == len(countryCode)+9:
		return phone[len(countryCode):]
	case strings.HasPrefix(phone, "0") && len(phone) == 10:
		return phone[1:]
	}
	return phone
}

// Operator returns the mobile network of a valid number
func (v *PhoneValidator) Operator(phone string) (string, error) {
	normalized, err := v.Normalize(phone)
	if err != nil {
		return "", err
	}
	return operators[normalized[4:6]], nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Normalize(phone)
	return err == nil
}
