package auth

import (
	"context"
	"errors"
	"testing"
)

func TestValidateCollapsesFailures(t *testing.T) {
	store := newMemStore()
	hash := mustHash(t, "correct-horse")
	store.addUser(User{Email: "active@example.com", PasswordHash: hash, Active: true})
	store.addUser(User{Email: "inactive@example.com", PasswordHash: hash, Active: false})
	store.addUser(User{Email: "nohash@example.com", Active: true})

	v := NewCredentialValidator(store, nil)
	cases := map[string]struct {
		email    string
		password string
	}{
		"absent":         {"ghost@example.com", "correct-horse"},
		"inactive":       {"inactive@example.com", "correct-horse"},
		"no credential":  {"nohash@example.com", "correct-horse"},
		"wrong password": {"active@example.com", "wrong-horse"},
		"empty password": {"active@example.com", ""},
	}
	for name, tc := range cases {
		user, err := v.Validate(context.Background(), tc.email, tc.password)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
		if err.Error() != ErrInvalidCredentials.Error() {
			t.Fatalf("%s: error leaks detail: %q", name, err.Error())
		}
		if user.ID != "" {
			t.Fatalf("%s: expected no identity, got %+v", name, user)
		}
	}
}

func TestValidateStoreErrorFailsClosed(t *testing.T) {
	store := newMemStore()
	store.failUsers = errStoreDown
	v := NewCredentialValidator(store, nil)
	if _, err := v.Validate(context.Background(), "a@example.com", "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateSuccessStripsHash(t *testing.T) {
	store := newMemStore()
	stored := store.addUser(User{Email: "worker@example.com", PasswordHash: mustHash(t, "s3cret-pass"), Active: true})

	v := NewCredentialValidator(store, nil)
	user, err := v.Validate(context.Background(), "  Worker@Example.com ", "s3cret-pass")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if user.ID != stored.ID {
		t.Fatalf("unexpected user %q", user.ID)
	}
	if user.PasswordHash != "" {
		t.Fatalf("password hash must be stripped")
	}
}
