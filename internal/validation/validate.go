// Package validation checks and cleans prospect input before it reaches
// session state. Validators return a Result instead of an error; callers
// check IsValid before mutating anything.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits.
const (
	MaxMessageLength = 2000
	MaxEmailLength   = 254
	MinNameLength    = 2
	MaxNameLength    = 100
	MaxCompanyLength = 100
	minPhoneDigits   = 7
	maxPhoneDigits   = 15
)

// User-facing messages.
const (
	MsgEmptyMessage   = "Message cannot be empty"
	MsgHarmfulContent = "Message contains potentially harmful content"
)

// Result is the outcome of a field check.
type Result struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

func ok() Result { return Result{IsValid: true} }

func fail(msg string) Result { return Result{Error: msg} }

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	namePattern    = regexp.MustCompile(`^[\p{L}\p{M}\s'.\-]+$`)
	companyPattern = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\s&'.,()/+\-]+$`)
	phonePattern   = regexp.MustCompile(`^\+?[\d\s().\-]+$`)
)

// ValidateMessage checks a chat message.
func ValidateMessage(message string) Result {
	if strings.TrimSpace(message) == "" {
		return fail(MsgEmptyMessage)
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return fail(fmt.Sprintf("Message is too long (maximum %d characters)", MaxMessageLength))
	}
	if ScanContent(message).Malicious {
		return fail(MsgHarmfulContent)
	}
	return ok()
}

// ValidateEmail checks a required e-mail address.
func ValidateEmail(email string) Result {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return fail("Email is required")
	case len(email) > MaxEmailLength:
		return fail("Email is too long")
	case !emailPattern.MatchString(email):
		return fail("Please enter a valid email address")
	}
	return ok()
}

// ValidateName checks a required person name.
func ValidateName(name string) Result {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	switch {
	case name == "":
		return fail("Name is required")
	case n < MinNameLength:
		return fail(fmt.Sprintf("Name must be at least %d characters", MinNameLength))
	case n > MaxNameLength:
		return fail(fmt.Sprintf("Name must be less than %d characters", MaxNameLength))
	case !namePattern.MatchString(name):
		return fail("Name contains invalid characters")
	}
	return ok()
}

// ValidateCompany checks an optional company name.
func ValidateCompany(company string) Result {
	company = strings.TrimSpace(company)
	if company == "" {
		return ok()
	}
	if utf8.RuneCountInString(company) > MaxCompanyLength {
		return fail(fmt.Sprintf("Company name must be less than %d characters", MaxCompanyLength))
	}
	if !companyPattern.MatchString(company) {
		return fail("Company name contains invalid characters")
	}
	return ok()
}

// ValidatePhone checks an optional phone number.
func ValidatePhone(phone string) Result {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ok()
	}
	if !phonePattern.MatchString(phone) {
		return fail("Please enter a valid phone number")
	}
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return fail("Please enter a valid phone number")
	}
	return ok()
}
