package main

import (
	"net/http/httptest"
	"testing"
)

func TestCredentialVerifier(t *testing.T) {
	cases := []struct {
		name      string
		secret    string
		presented string
		want      bool
	}{
		{"match", "s3cret", "s3cret", true},
		{"mismatch", "s3cret", "s3cret!", false},
		{"prefix", "s3cret", "s3c", false},
		{"empty presented", "s3cret", "", false},
		{"unconfigured", "", "", false},
		{"unconfigured with value", "", "anything", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewCredentialVerifier(tc.secret)
			if got := v.Verify(tc.presented); got != tc.want {
				t.Fatalf("Verify(%q) = %v, want %v", tc.presented, got, tc.want)
			}
		})
	}
	if NewCredentialVerifier("").Configured() {
		t.Fatalf("empty secret reported as configured")
	}
}

func TestPresentedCredential(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer tok"}, "tok"},
		{"bearer lowercase", map[string]string{"Authorization": "bearer tok"}, "tok"},
		{"basic ignored", map[string]string{"Authorization": "Basic dTpw"}, ""},
		{"admin header", map[string]string{"X-Admin-Token": " tok "}, "tok"},
		{"none", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/products", nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := presentedCredential(r); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
