package auth

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	hasLetter       = regexp.MustCompile(`[A-Za-z]`)
	hasDigit        = regexp.MustCompile(`[0-9]`)
)

// bcrypt ignores everything past 72 bytes
const maxPasswordLength = 72

func usernameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("username is required"),
		validation.RuneLength(3, 30).Error("username must be between 3 and 30 characters"),
		validation.Match(usernamePattern).Error("username can only contain letters, numbers and underscores"),
	}
}

func passwordRules(minLength int) []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("password is required"),
		validation.Length(minLength, maxPasswordLength).Error("password is too short or too long"),
		validation.Match(hasLetter).Error("password must contain at least one letter"),
		validation.Match(hasDigit).Error("password must contain at least one number"),
	}
}

func invalidInput(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.FromOzzoValidation(err, message).WithCode(goerrors.CodeBadRequest)
}

func fieldError(message, field, fieldMessage string) *goerrors.Error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: fieldMessage,
	}).WithCode(goerrors.CodeBadRequest)
}
