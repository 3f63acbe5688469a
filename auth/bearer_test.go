package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewBearerTransport(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewBearerTransport("secret-token", nil)}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
}

func TestRequireBearer(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "disabled", token: "", header: "", want: http.StatusNoContent},
		{name: "match", token: "secret", header: "Bearer secret", want: http.StatusNoContent},
		{name: "missing", token: "secret", header: "", want: http.StatusUnauthorized},
		{name: "wrong token", token: "secret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", token: "secret", header: "Basic secret", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireBearer(tt.token, ok).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %v, got %v", tt.want, rec.Code)
			}
		})
	}
}
