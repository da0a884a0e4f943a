package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{header: "bearer   abc", want: "abc"},
		{header: "Basic dXNlcjpwYXNz", wantErr: true},
		{header: "Bearer ", wantErr: true},
		{header: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.header)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v", tc.header, got, err)
		}
	}
}

func TestTokenFromRequestPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookie, Value: "from-cookie"})
	if got, err := tokenFromRequest(req); err != nil || got != "from-cookie" {
		t.Fatalf("expected cookie token, got %q, %v", got, err)
	}

	req.Header.Set(authHeader, "Bearer from-header")
	if got, err := tokenFromRequest(req); err != nil || got != "from-header" {
		t.Fatalf("expected header token, got %q, %v", got, err)
	}

	if _, err := tokenFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)); err == nil {
		t.Fatalf("expected error without credentials")
	}
}
