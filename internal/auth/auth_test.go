package auth

import (
	"net/http/httptest"
	"testing"
)

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		header  string
		wantErr string
	}{
		{name: "disabled", apiKey: "", header: ""},
		{name: "valid", apiKey: "s3cret", header: "Bearer s3cret"},
		{name: "valid with padding", apiKey: "s3cret", header: "Bearer   s3cret  "},
		{name: "missing header", apiKey: "s3cret", wantErr: "missing Authorization header"},
		{name: "basic scheme", apiKey: "s3cret", header: "Basic s3cret", wantErr: "invalid Authorization header format"},
		{name: "empty token", apiKey: "s3cret", header: "Bearer ", wantErr: "missing API key"},
		{name: "wrong key", apiKey: "s3cret", header: "Bearer nope", wantErr: "invalid API key"},
		{name: "prefix of key", apiKey: "s3cret", header: "Bearer s3c", wantErr: "invalid API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/print", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			err := Authenticate(r, tt.apiKey)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Authenticate() error = %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
