package s3blob

import "testing"

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"http://localhost:9000", true, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"minio.internal:9000", false, "http://minio.internal:9000"},
	}
	for _, tc := range cases {
		if got := endpointURL(tc.endpoint, tc.useSSL); got != tc.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tc.endpoint, tc.useSSL, got, tc.want)
		}
	}
}
