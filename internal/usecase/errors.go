package usecase

import "errors"

const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeDuplicateLead    = "DUPLICATE_LEAD"
	CodeCampaignNotFound = "CAMPAIGN_NOT_FOUND"
	CodeLeadNotFound     = "LEAD_NOT_FOUND"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeDatabase         = "DATABASE_ERROR"
)

// DomainError is a failure caused by the caller's input.
type DomainError struct {
	Code    string
	Message string
	Fields  []ValidationError
}

func (e *DomainError) Error() string {
	return e.Message
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// TechnicalError is an infrastructure failure the caller cannot fix.
type TechnicalError struct {
	Code    string
	Message string
	Err     error
}

func (e *TechnicalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TechnicalError) Unwrap() error {
	return e.Err
}

func IsTechnicalError(err error) bool {
	var te *TechnicalError
	return errors.As(err, &te)
}

// ErrorCode returns the code carried by a DomainError or TechnicalError.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	var te *TechnicalError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
