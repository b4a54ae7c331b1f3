package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PhoneNumber represents a validated phone number value object.
// Stored as bare digits; the upstream compliance vendors all consume
// digits-only input, and the internal dialer wants a +1 prefix.
type PhoneNumber struct {
	digits string
}

var nonDigitRegex = regexp.MustCompile(`\D`)

// NewPhoneNumber creates a new PhoneNumber, stripping formatting characters and
// validating the digit count (10-15, matching the vendors' accepted range).
func NewPhoneNumber(number string) (PhoneNumber, error) {
	if number == "" {
		return PhoneNumber{}, fmt.Errorf("phone number cannot be empty")
	}

	digits := nonDigitRegex.ReplaceAllString(number, "")
	if len(digits) < 10 || len(digits) > 15 {
		return PhoneNumber{}, fmt.Errorf("invalid phone number format: %s", number)
	}

	return PhoneNumber{digits: digits}, nil
}

// MustNewPhoneNumber creates a PhoneNumber and panics on error (for fixtures/tests)
func MustNewPhoneNumber(number string) PhoneNumber {
	phone, err := NewPhoneNumber(number)
	if err != nil {
		panic(err)
	}
	return phone
}

// String returns the digits-only form
func (p PhoneNumber) String() string {
	return p.digits
}

// Digits returns the digits-only form (alias for String)
func (p PhoneNumber) Digits() string {
	return p.digits
}

// Dialer returns the number in the +1-prefixed form the internal dialer expects.
// Numbers that already carry a country code are passed through with a plus.
func (p PhoneNumber) Dialer() string {
	if strings.HasPrefix(p.digits, "1") && len(p.digits) == 11 {
		return "+" + p.digits
	}
	if len(p.digits) == 10 {
		return "+1" + p.digits
	}
	return "+" + p.digits
}

// IsEmpty checks if the phone number is empty
func (p PhoneNumber) IsEmpty() bool {
	return p.digits == ""
}

// Equal checks if two PhoneNumber values are equal
func (p PhoneNumber) Equal(other PhoneNumber) bool {
	return p.digits == other.digits
}

// MarshalJSON implements json.Marshaler
func (p PhoneNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.digits)
}

// UnmarshalJSON implements json.Unmarshaler
func (p *PhoneNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	phone, err := NewPhoneNumber(s)
	if err != nil {
		return err
	}
	*p = phone
	return nil
}

// Value implements driver.Valuer for database storage
func (p PhoneNumber) Value() (driver.Value, error) {
	return p.digits, nil
}

// Scan implements sql.Scanner for database retrieval
func (p *PhoneNumber) Scan(value interface{}) error {
	if value == nil {
		*p = PhoneNumber{}
		return nil
	}

	switch v := value.(type) {
	case string:
		phone, err := NewPhoneNumber(v)
		if err != nil {
			return err
		}
		*p = phone
	case []byte:
		phone, err := NewPhoneNumber(string(v))
		if err != nil {
			return err
		}
		*p = phone
	default:
		return fmt.Errorf("cannot scan %T into PhoneNumber", value)
	}
	return nil
}
