package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/metrics":                "/metrics",
		"/v1/auth/login":          "/v1/auth/login",
		"/v1/auth/login?debug=1":  "/v1/auth/login",
		"/v1/admin/accounts/ban":  "/v1/admin/accounts/ban",
		"/v1/admin/events":        "/v1/admin/events",
		"/wp-admin/setup.php":     "/other",
		"/v1/auth/login/whatever": "/other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
