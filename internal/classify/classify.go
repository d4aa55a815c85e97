// Package classify maps raw remote failures onto a fixed set of user-facing categories.
package classify

import (
	"strings"
)

// Category is a user-facing failure class.
type Category int

const (
	Unknown Category = iota
	Authentication
	Network
	Timeout
	ConnectionRefused
	ServiceUnavailable
	Cancelled
	Generic
)

var categoryNames = map[Category]string{
	Unknown:            "unknown",
	Authentication:     "authentication",
	Network:            "network",
	Timeout:            "timeout",
	ConnectionRefused:  "connection_refused",
	ServiceUnavailable: "service_unavailable",
	Cancelled:          "cancelled",
	Generic:            "generic",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the category name in JSON payloads.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Retryable reports whether waiting and trying again can fix a failure of this class.
func (c Category) Retryable() bool {
	return c != Authentication && c != Cancelled
}

// Templates holds the fixed message for every category except Generic,
// whose message echoes the raw failure.
var Templates = map[Category]string{
	Authentication:     "Authentication required. Please log in and try again.",
	Network:            "Network error. Please check your connection and try again.",
	Timeout:            "Request timed out. Please try again.",
	ConnectionRefused:  "Could not reach the backend service. Please try again later.",
	ServiceUnavailable: "The backend service is temporarily unavailable. Please try again later.",
	Cancelled:          "Login was cancelled.",
	Unknown:            "An unexpected error occurred. Please try again.",
}

const genericPrefix = "Error: "

// Result is a classified failure.
type Result struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// FailureMessager is implemented by tagged backend results that carry an explicit message.
type FailureMessager interface {
	FailureMessage() string
}

type rule struct {
	category Category
	needles  []string
}

// Checked in order; the first match wins.
var rules = []rule{
	{Authentication, []string{"unauthenticated", "not authenticated", "anonymous", "identity", "unauthorized"}},
	{Network, []string{"network", "fetch"}},
	{Timeout, []string{"timeout", "timed out", "deadline"}},
	{ConnectionRefused, []string{"connection refused", "econnrefused"}},
	{ServiceUnavailable, []string{"unavailable", "replica", "service down", "is stopped"}},
}

var cancelRule = rule{Cancelled, []string{"cancel", "user interrupt", "userinterrupt", "closed by user"}}

// Classify maps v onto a category and its user message.
func Classify(v any) Result {
	if ce, ok := v.(*Error); ok && ce != nil {
		return ce.Result
	}
	msg, ok := messageOf(v)
	if !ok {
		return newResult(Unknown, "")
	}
	return match(msg, rules)
}

// ClassifyLogin is Classify extended with the Cancelled category, which is
// checked before every other category.
func ClassifyLogin(v any) Result {
	msg, ok := messageOf(v)
	if !ok {
		return newResult(Unknown, "")
	}
	if matches(strings.ToLower(msg), cancelRule.needles) {
		return newResult(Cancelled, msg)
	}
	return match(msg, rules)
}

// Message is shorthand for Classify(v).Message.
func Message(v any) string {
	return Classify(v).Message
}

func messageOf(v any) (string, bool) {
	var msg string
	switch t := v.(type) {
	case nil:
		return "", false
	case error:
		msg = t.Error()
	case FailureMessager:
		msg = t.FailureMessage()
	case string:
		msg = t
	default:
		return "", false
	}
	msg = strings.TrimSpace(msg)
	return msg, msg != ""
}

func match(msg string, rs []rule) Result {
	lower := strings.ToLower(msg)
	for _, r := range rs {
		if matches(lower, r.needles) {
			return newResult(r.category, msg)
		}
	}
	return newResult(Generic, msg)
}

func matches(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func newResult(c Category, raw string) Result {
	if c == Generic {
		return Result{Category: c, Message: genericPrefix + raw}
	}
	return Result{Category: c, Message: Templates[c]}
}
