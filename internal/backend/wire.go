package backend

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ashureev/acbuy/internal/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "acbuy.v1.Backend"

const (
	methodSubmitAC             = "/" + ServiceName + "/SubmitAC"
	methodListSubmissions      = "/" + ServiceName + "/ListSubmissions"
	methodGetSubmission        = "/" + ServiceName + "/GetSubmission"
	methodListCustomerContacts = "/" + ServiceName + "/ListCustomerContacts"
	methodWhoami               = "/" + ServiceName + "/Whoami"
)

var errMalformed = errors.New("malformed backend message")

// Messages travel as structpb.Struct so the default proto codec applies.
// Timestamps are carried as decimal strings: a float64 number value cannot
// hold nanosecond precision.

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func encodeCondition(c domain.Condition, schema domain.Schema) *structpb.Value {
	if schema == domain.SchemaFreeText {
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"description": structpb.NewStringValue(c.Description),
		}})
	}
	return structpb.NewStringValue(string(c.Level))
}

func decodeCondition(v *structpb.Value) domain.Condition {
	if desc := v.GetStructValue(); desc != nil {
		return domain.Condition{Description: str(desc, "description")}
	}
	raw := v.GetStringValue()
	if lvl, ok := domain.ParseConditionLevel(raw); ok {
		return domain.Condition{Level: lvl}
	}
	return domain.Condition{Description: raw}
}

func encodeSubmitRequest(req domain.SubmissionRequest, schema domain.Schema) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"brand":         structpb.NewStringValue(req.Brand),
		"model":         structpb.NewStringValue(req.Model),
		"age":           structpb.NewNumberValue(float64(req.Age)),
		"condition":     encodeCondition(req.Condition, schema),
		"customer_name": structpb.NewStringValue(req.CustomerName),
		"phone":         structpb.NewStringValue(req.Phone),
		"email":         structpb.NewStringValue(req.Email),
	}}
}

func decodeSubmitRequest(s *structpb.Struct) domain.SubmissionRequest {
	f := s.GetFields()
	return domain.SubmissionRequest{
		Brand:        str(s, "brand"),
		Model:        str(s, "model"),
		Age:          int(f["age"].GetNumberValue()),
		Condition:    decodeCondition(f["condition"]),
		CustomerName: str(s, "customer_name"),
		Phone:        str(s, "phone"),
		Email:        str(s, "email"),
	}
}

func encodeSubmission(sub *domain.Submission, schema domain.Schema) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":            structpb.NewStringValue(sub.ID),
		"brand":         structpb.NewStringValue(sub.Brand),
		"model":         structpb.NewStringValue(sub.Model),
		"age":           structpb.NewNumberValue(float64(sub.Age)),
		"condition":     encodeCondition(sub.Condition, schema),
		"customer_name": structpb.NewStringValue(sub.CustomerName),
		"phone":         structpb.NewStringValue(sub.Phone),
		"email":         structpb.NewStringValue(sub.Email),
		"timestamp":     structpb.NewStringValue(strconv.FormatInt(sub.Timestamp, 10)),
	}}
}

func decodeSubmission(s *structpb.Struct) (domain.Submission, error) {
	if s == nil {
		return domain.Submission{}, fmt.Errorf("%w: empty submission", errMalformed)
	}
	f := s.GetFields()
	ts, err := strconv.ParseInt(str(s, "timestamp"), 10, 64)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("%w: timestamp: %w", errMalformed, err)
	}
	return domain.Submission{
		ID:           str(s, "id"),
		Brand:        str(s, "brand"),
		Model:        str(s, "model"),
		Age:          int(f["age"].GetNumberValue()),
		Condition:    decodeCondition(f["condition"]),
		CustomerName: str(s, "customer_name"),
		Phone:        str(s, "phone"),
		Email:        str(s, "email"),
		Timestamp:    ts,
	}, nil
}

// encodeResult writes a tagged {success}|{error} result in the enum schema
// and a bare {ok} flag in the free-text schema.
func encodeResult(r domain.SubmissionResult, schema domain.Schema) *structpb.Struct {
	if schema == domain.SchemaFreeText {
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			"ok": structpb.NewBoolValue(r.Kind == domain.ResultSuccess),
		}}
	}
	key := "error"
	if r.Kind == domain.ResultSuccess {
		key = "success"
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		key: structpb.NewStringValue(r.Message),
	}}
}

func decodeResult(s *structpb.Struct) domain.SubmissionResult {
	f := s.GetFields()
	if v, ok := f["success"]; ok {
		return domain.SubmissionResult{Kind: domain.ResultSuccess, Message: v.GetStringValue()}
	}
	if v, ok := f["error"]; ok {
		return domain.SubmissionResult{Kind: domain.ResultError, Message: v.GetStringValue()}
	}
	if v, ok := f["ok"]; ok {
		if v.GetBoolValue() {
			return domain.SubmissionResult{Kind: domain.ResultSuccess}
		}
		return domain.SubmissionResult{Kind: domain.ResultError}
	}
	return domain.SubmissionResult{}
}

func encodeSubmissions(subs []domain.Submission, schema domain.Schema) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(subs))
	for i := range subs {
		values = append(values, structpb.NewStructValue(encodeSubmission(&subs[i], schema)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"submissions": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func decodeSubmissions(s *structpb.Struct) ([]domain.Submission, error) {
	values := s.GetFields()["submissions"].GetListValue().GetValues()
	subs := make([]domain.Submission, 0, len(values))
	for i, v := range values {
		sub, err := decodeSubmission(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("submission %d: %w", i, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func encodeContacts(contacts []domain.Contact) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(contacts))
	for _, c := range contacts {
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"submission_id": structpb.NewStringValue(c.SubmissionID),
			"customer_name": structpb.NewStringValue(c.CustomerName),
			"phone":         structpb.NewStringValue(c.Phone),
			"email":         structpb.NewStringValue(c.Email),
		}}))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"contacts": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func decodeContacts(s *structpb.Struct) []domain.Contact {
	values := s.GetFields()["contacts"].GetListValue().GetValues()
	contacts := make([]domain.Contact, 0, len(values))
	for _, v := range values {
		c := v.GetStructValue()
		contacts = append(contacts, domain.Contact{
			SubmissionID: str(c, "submission_id"),
			CustomerName: str(c, "customer_name"),
			Phone:        str(c, "phone"),
			Email:        str(c, "email"),
		})
	}
	return contacts
}
