package middleware

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,128}$`)

// ValidateUserID allows alphanumeric, dash, underscore, dot and @ (max 128 chars)
func ValidateUserID(user string) error {
	if user == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if !userIDPattern.MatchString(user) {
		return fmt.Errorf("invalid user ID format (alphanumeric, dash, underscore, dot, @ only, max 128 chars)")
	}
	return nil
}

// ValidateSessionID expects a UUID
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateFileID expects a UUID
func ValidateFileID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid file ID format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidatePage clamps page numbers to 1..
func ValidatePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
