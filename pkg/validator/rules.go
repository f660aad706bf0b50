package validator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Required fails on empty or whitespace-only values.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "field is required", Key: "validation.required"},
	}
}

// MaxLen fails when value is longer than max bytes.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return len(value) <= max },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %d characters long", max),
			Key:     "validation.max_length",
		},
	}
}

// OneOf fails when value is not among options.
func OneOf[T comparable](field string, value T, options []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(options, value) },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of: %v", options),
			Key:     "validation.one_of",
		},
	}
}

// Matches fails when a non-empty value does not match re. Pair it with
// Required for mandatory fields.
func Matches(field, value string, re *regexp.Regexp) Rule {
	return Rule{
		Check: func() bool { return value == "" || re.MatchString(value) },
		Error: ValidationError{Field: field, Message: "has an invalid format", Key: "validation.format"},
	}
}
