package domain

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestCreateUserRequestValidate(t *testing.T) {
	valid := func() *CreateUserRequest {
		return &CreateUserRequest{
			PhoneNumber: "+84901234567",
			Password:    "longenough",
			FullName:    "Nguyen Van A",
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	r := valid()
	r.PhoneNumber = "abc"
	if err := r.Validate(); err == nil {
		t.Error("expected error for bad phone")
	}

	r = valid()
	r.Password = "short"
	if err := r.Validate(); err == nil {
		t.Error("expected error for short password")
	}

	r = valid()
	bad := "not-an-email"
	r.Email = &bad
	if err := r.Validate(); err == nil {
		t.Error("expected error for bad email")
	}
}

func TestCreateUserRequestNormalize(t *testing.T) {
	email := "  Rider@Example.COM "
	r := &CreateUserRequest{
		PhoneNumber: " +84 901 234 567 ",
		FullName:    "  Nguyen Van A ",
		Email:       &email,
	}
	r.Normalize()

	if r.PhoneNumber != "+84901234567" {
		t.Errorf("phone = %q", r.PhoneNumber)
	}
	if r.FullName != "Nguyen Van A" {
		t.Errorf("full_name = %q", r.FullName)
	}
	if r.Email == nil || *r.Email != "rider@example.com" {
		t.Errorf("email = %v", r.Email)
	}

	empty := " "
	r = &CreateUserRequest{PhoneNumber: "+84901234567", Email: &empty}
	r.Normalize()
	if r.Email != nil {
		t.Errorf("blank email should normalize to nil, got %q", *r.Email)
	}
}

func TestChallengeActive(t *testing.T) {
	now := mustParse(t, "2026-08-30T12:00:00Z")

	ch := &OtpChallenge{ExpiresAt: mustParse(t, "2026-08-30T12:05:00Z")}
	if !ch.Active(now, 5) {
		t.Error("pending unexpired challenge should be active")
	}

	if ch.Active(mustParse(t, "2026-08-30T12:06:00Z"), 5) {
		t.Error("expired challenge should be inactive")
	}

	consumed := now
	ch = &OtpChallenge{ExpiresAt: mustParse(t, "2026-08-30T12:05:00Z"), ConsumedAt: &consumed}
	if ch.Active(now, 5) {
		t.Error("consumed challenge should be inactive")
	}

	ch = &OtpChallenge{ExpiresAt: mustParse(t, "2026-08-30T12:05:00Z"), Attempts: 5}
	if ch.Active(now, 5) {
		t.Error("exhausted challenge should be inactive")
	}

	var nilCh *OtpChallenge
	if nilCh.Active(now, 5) {
		t.Error("nil challenge should be inactive")
	}
}
