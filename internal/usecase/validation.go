package usecase

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var (
	nonDigits    = regexp.MustCompile(`\D`)
	usZipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ValidateCaptureLeadInput(input CaptureLeadInput) []ValidationError {
	var errors []ValidationError

	email := strings.TrimSpace(input.Email)
	if email == "" {
		errors = append(errors, ValidationError{"email", "is required"})
	} else if !isBareAddress(email) {
		errors = append(errors, ValidationError{"email", "is invalid"})
	} else if len(email) > 254 {
		errors = append(errors, ValidationError{"email", "must not exceed 254 characters"})
	}

	if strings.TrimSpace(input.Name) == "" {
		errors = append(errors, ValidationError{"name", "is required"})
	} else if len(input.Name) > 200 {
		errors = append(errors, ValidationError{"name", "must not exceed 200 characters"})
	}

	if strings.TrimSpace(input.Intent) == "" {
		errors = append(errors, ValidationError{"intent", "is required"})
	}

	if input.Phone != "" && !isValidPhoneNumber(input.Phone) {
		errors = append(errors, ValidationError{"phone", "must be a valid phone number"})
	}

	if input.Zipcode != "" && !isValidZipCode(input.Zipcode) {
		errors = append(errors, ValidationError{"zipcode", "must be a valid zip code (XXXXX or XXXXX-XXXX)"})
	}

	if input.Score != nil && (*input.Score < 0 || *input.Score > 100) {
		errors = append(errors, ValidationError{"score", "must be between 0 and 100"})
	}

	return errors
}

func validationMessage(errs []ValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Field+" ("+e.Message+")")
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// isBareAddress accepts only a plain addr-spec. Display-name and angle
// bracket forms parse too, but they would defeat the duplicate check.
func isBareAddress(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Name == "" && addr.Address == email
}

func isValidPhoneNumber(phone string) bool {
	cleaned := nonDigits.ReplaceAllString(phone, "")
	return len(cleaned) >= 10 && len(cleaned) <= 15
}

func isValidZipCode(zipcode string) bool {
	return usZipPattern.MatchString(strings.TrimSpace(zipcode))
}
