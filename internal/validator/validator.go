// Package validator implements the request intake checks the core
// itself never performs: UTF-8 well-formedness, the 1-8000 scalar-value
// length cap, and model auto-selection when the caller names none.
package validator

import (
	"fmt"
	"unicode/utf8"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/fallback"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
)

const (
	minPromptScalars = 1
	maxPromptScalars = 8000
)

// ValidationErrors collects every field-level problem found; handlers
// recover it with a type assertion (`err.(*ValidationErrors)`).
type ValidationErrors struct {
	Errors []string
}

func (e *ValidationErrors) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(e.Errors))
}

// IncomingRequest is the wire shape intake accepts from the client,
// before it is turned into models.Request.
type IncomingRequest struct {
	Prompt string               `json:"prompt"`
	Models []models.ModelChoice `json:"models,omitempty"`
}

// Validate checks req and, when Models is empty, auto-selects the first
// entry of the default fallback chain so every request compares at least
// one model.
func Validate(req *IncomingRequest) error {
	var errs []string

	if !utf8.ValidString(req.Prompt) {
		errs = append(errs, "prompt: not valid UTF-8")
	}
	n := utf8.RuneCountInString(req.Prompt)
	if n < minPromptScalars || n > maxPromptScalars {
		errs = append(errs, fmt.Sprintf("prompt: length %d out of range [%d, %d]", n, minPromptScalars, maxPromptScalars))
	}

	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}

	if len(req.Models) == 0 {
		req.Models = append([]models.ModelChoice{}, fallback.DefaultChain[:1]...)
	}
	return nil
}
