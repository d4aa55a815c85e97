// Package form validates customer submission forms before they reach the backend.
package form

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/ashureev/acbuy/internal/domain"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// SubmissionForm is the raw form payload posted by the browser.
type SubmissionForm struct {
	Brand        string `json:"brand" validate:"required,max=64"`
	Model        string `json:"model" validate:"required,max=64"`
	Age          *int   `json:"age" validate:"required,min=0,max=20"`
	Condition    string `json:"condition" validate:"required,max=500"`
	CustomerName string `json:"customer_name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"required,phone10"`
	Email        string `json:"email" validate:"required,email,max=254"`
}

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("invalid submission")

// ValidationError lists failures per json field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

type engine struct {
	validate *validator.Validate
	trans    ut.Translator
}

var (
	engOnce sync.Once
	eng     *engine
	engErr  error
)

// get lazily builds the shared validator. A setup failure is sticky and
// reported by every call.
func get() (*engine, error) {
	engOnce.Do(func() {
		eng, engErr = newEngine()
		if engErr != nil {
			slog.Error("Submission validator setup failed", "error", engErr)
		}
	})
	return eng, engErr
}

// newEngine builds a validator with english messages keyed by json names.
func newEngine() (*engine, error) {
	enLoc := en.New()
	uni := ut.New(enLoc, enLoc)
	trans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, errors.New("english translator unavailable")
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		if tag == "" || tag == "-" {
			return fld.Name
		}
		return tag
	})
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, fmt.Errorf("register translations: %w", err)
	}
	if err := v.RegisterValidation("phone10", isPhone10); err != nil {
		return nil, fmt.Errorf("register phone10: %w", err)
	}
	if err := registerMessage(v, trans, "phone10", "Please enter a valid 10-digit phone number"); err != nil {
		return nil, err
	}
	return &engine{validate: v, trans: trans}, nil
}

func registerMessage(v *validator.Validate, trans ut.Translator, tag, msg string) error {
	err := v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error { return ut.Add(tag, msg, true) },
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag)
			return t
		},
	)
	if err != nil {
		return fmt.Errorf("register %s message: %w", tag, err)
	}
	return nil
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPhone10(fl validator.FieldLevel) bool {
	return len(DigitsOnly(fl.Field().String())) == 10
}

// Original messages for the fields customers trip over most.
var fieldMessages = map[string]map[string]string{
	"brand":         {"required": "Brand is required"},
	"model":         {"required": "Model is required"},
	"customer_name": {"required": "Name is required"},
	"phone":         {"required": "Phone number is required"},
	"email":         {"required": "Email is required", "email": "Please enter a valid email address"},
	"condition":     {"required": "Please select a condition"},
	"age": {
		"required": "Please enter a valid age (0 or greater)",
		"min":      "Please enter a valid age (0 or greater)",
		"max":      fmt.Sprintf("Age seems too high. Please verify (max %d years)", domain.MaxAge),
	},
}

func (f *SubmissionForm) trim() {
	f.Brand = strings.TrimSpace(f.Brand)
	f.Model = strings.TrimSpace(f.Model)
	f.Condition = strings.TrimSpace(f.Condition)
	f.CustomerName = strings.TrimSpace(f.CustomerName)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Email = strings.TrimSpace(f.Email)
}

// Parse validates f and builds the immutable request for the given schema.
func Parse(f SubmissionForm, schema domain.Schema) (domain.SubmissionRequest, error) {
	f.trim()
	e, err := get()
	if err != nil {
		return domain.SubmissionRequest{}, fmt.Errorf("validate submission: %w", err)
	}

	fields := map[string]string{}
	if err := e.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.SubmissionRequest{}, fmt.Errorf("validate submission: %w", err)
		}
		for _, fe := range verrs {
			fields[fe.Field()] = messageFor(fe, e.trans)
		}
	}

	var cond domain.Condition
	if _, bad := fields["condition"]; !bad {
		switch schema {
		case domain.SchemaFreeText:
			cond = domain.Condition{Description: f.Condition}
		default:
			lvl, ok := domain.ParseConditionLevel(f.Condition)
			if !ok {
				fields["condition"] = "Please select a condition"
			}
			cond = domain.Condition{Level: lvl}
		}
	}

	if len(fields) > 0 {
		return domain.SubmissionRequest{}, &ValidationError{Fields: fields}
	}

	return domain.SubmissionRequest{
		Brand:        f.Brand,
		Model:        f.Model,
		Age:          *f.Age,
		Condition:    cond,
		CustomerName: f.CustomerName,
		Phone:        f.Phone,
		Email:        f.Email,
	}, nil
}

func messageFor(fe validator.FieldError, trans ut.Translator) string {
	if byTag, ok := fieldMessages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
	}
	return fe.Translate(trans)
}

// ValidateRequest re-checks an already built request, as the backend does on receipt.
func ValidateRequest(req domain.SubmissionRequest, schema domain.Schema) error {
	age := req.Age
	_, err := Parse(SubmissionForm{
		Brand:        req.Brand,
		Model:        req.Model,
		Age:          &age,
		Condition:    req.Condition.String(),
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Email:        req.Email,
	}, schema)
	return err
}
