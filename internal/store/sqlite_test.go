package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ashureev/acbuy/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "backend.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func TestSQLiteStore_InsertAndList(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	first := &domain.Submission{
		ID: "sub-1", Brand: "LG", Model: "X1", Age: 3,
		Condition:    domain.Condition{Level: domain.ConditionGood},
		CustomerName: "A", Phone: "1234567890", Email: "a@b.com",
		Timestamp: 2_000,
	}
	second := &domain.Submission{
		ID: "sub-2", Brand: "Daikin", Model: "FTKF", Age: 7,
		Condition:    domain.Condition{Description: "compressor noisy"},
		CustomerName: "B", Phone: "0987654321", Email: "b@c.com",
		Timestamp: 1_000,
	}
	for _, s := range []*domain.Submission{first, second} {
		if err := repo.InsertSubmission(ctx, s); err != nil {
			t.Fatalf("InsertSubmission(%s): %v", s.ID, err)
		}
	}

	subs, err := repo.ListSubmissions(ctx)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("Expected 2 submissions, got %d", len(subs))
	}
	// Insertion order, not timestamp order.
	if subs[0].ID != "sub-1" || subs[1].ID != "sub-2" {
		t.Errorf("Unexpected order: %s, %s", subs[0].ID, subs[1].ID)
	}
	if subs[0].Condition.Level != domain.ConditionGood {
		t.Errorf("Expected level good, got %q", subs[0].Condition.Level)
	}
	if subs[1].Condition.Description != "compressor noisy" || subs[1].Condition.Level != "" {
		t.Errorf("Unexpected free-text condition: %+v", subs[1].Condition)
	}
	if subs[0].Timestamp != 2_000 {
		t.Errorf("Expected timestamp 2000, got %d", subs[0].Timestamp)
	}
}

func TestSQLiteStore_GetSubmission(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetSubmission(ctx, "missing")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected nil for missing id, got %+v", got)
	}

	sub := &domain.Submission{ID: "sub-9", Brand: "Voltas", Model: "V", CustomerName: "C", Phone: "1", Email: "c@d.e", Timestamp: 5}
	if err := repo.InsertSubmission(ctx, sub); err != nil {
		t.Fatalf("InsertSubmission: %v", err)
	}
	got, err = repo.GetSubmission(ctx, "sub-9")
	if err != nil || got == nil {
		t.Fatalf("GetSubmission: %v, %v", got, err)
	}
	if got.Brand != "Voltas" {
		t.Errorf("Expected brand Voltas, got %s", got.Brand)
	}
}

func TestSQLiteStore_DuplicateIDFails(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	sub := &domain.Submission{ID: "dup", Brand: "LG", Model: "X", CustomerName: "A", Phone: "1", Email: "a@b.c"}
	if err := repo.InsertSubmission(ctx, sub); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := repo.InsertSubmission(ctx, sub); err == nil {
		t.Fatal("Expected duplicate insert to fail")
	}
}

func TestSQLiteStore_ListContacts(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	sub := &domain.Submission{ID: "s1", Brand: "LG", Model: "X", CustomerName: "Asha", Phone: "1234567890", Email: "asha@example.com"}
	if err := repo.InsertSubmission(ctx, sub); err != nil {
		t.Fatalf("InsertSubmission: %v", err)
	}
	contacts, err := repo.ListContacts(ctx)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	want := domain.Contact{SubmissionID: "s1", CustomerName: "Asha", Phone: "1234567890", Email: "asha@example.com"}
	if len(contacts) != 1 || contacts[0] != want {
		t.Errorf("Expected %+v, got %+v", want, contacts)
	}
}

func TestIsConflict(t *testing.T) {
	cases := map[string]bool{
		"database is locked (5) (SQLITE_BUSY)": true,
		"database is locked":                   true,
		"UNIQUE constraint failed":             false,
	}
	for msg, want := range cases {
		if got := isConflict(errors.New(msg)); got != want {
			t.Errorf("isConflict(%q) = %v, want %v", msg, got, want)
		}
	}
	if isConflict(nil) {
		t.Error("isConflict(nil) should be false")
	}
}
