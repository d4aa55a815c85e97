// Package domain contains core domain types for the acbuy front desk.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxAge is the upper sanity limit for the age of a unit, in years.
const MaxAge = 20

// Schema selects which submission data model a deployment speaks.
type Schema string

const (
	// SchemaEnum uses the five-level condition enumeration and a tagged success/error result.
	SchemaEnum Schema = "enum"
	// SchemaFreeText uses a free-text condition description and a boolean result.
	SchemaFreeText Schema = "freetext"
)

// ParseSchema validates a schema name.
func ParseSchema(s string) (Schema, error) {
	switch Schema(strings.ToLower(strings.TrimSpace(s))) {
	case SchemaEnum:
		return SchemaEnum, nil
	case SchemaFreeText:
		return SchemaFreeText, nil
	default:
		return "", fmt.Errorf("unknown submission schema %q", s)
	}
}

// ConditionLevel is one of the five closed condition grades.
type ConditionLevel string

const (
	ConditionNew       ConditionLevel = "new"
	ConditionExcellent ConditionLevel = "excellent"
	ConditionGood      ConditionLevel = "good"
	ConditionAverage   ConditionLevel = "average"
	ConditionPoor      ConditionLevel = "poor"
)

// ConditionLevels lists the grades from best to worst.
var ConditionLevels = []ConditionLevel{
	ConditionNew,
	ConditionExcellent,
	ConditionGood,
	ConditionAverage,
	ConditionPoor,
}

// ParseConditionLevel returns the grade named by s.
func ParseConditionLevel(s string) (ConditionLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, lvl := range ConditionLevels {
		if string(lvl) == s {
			return lvl, true
		}
	}
	return "", false
}

// Condition is either a closed grade or a free-text description, never both.
type Condition struct {
	Level       ConditionLevel `json:"level,omitempty"`
	Description string         `json:"description,omitempty"`
}

// String returns the grade or the description.
func (c Condition) String() string {
	if c.Level != "" {
		return string(c.Level)
	}
	return c.Description
}

// SubmissionRequest is what a customer submits about a unit they want to sell.
// It is built once per submit action and never mutated.
type SubmissionRequest struct {
	Brand        string
	Model        string
	Age          int
	Condition    Condition
	CustomerName string
	Phone        string
	Email        string
}

// Submission is a stored submission as returned by the backend.
type Submission struct {
	ID           string    `json:"id"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Age          int       `json:"age"`
	Condition    Condition `json:"condition"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Timestamp    int64     `json:"timestamp"` // nanoseconds since the Unix epoch
}

// SubmittedAt converts the backend timestamp to a time.Time.
func (s *Submission) SubmittedAt() time.Time {
	return time.Unix(0, s.Timestamp)
}

// Contact is a customer's contact details as listed by the backend.
type Contact struct {
	SubmissionID string `json:"submission_id"`
	CustomerName string `json:"customer_name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
}
