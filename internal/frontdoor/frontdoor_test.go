package frontdoor

import (
	"errors"
	"testing"
)

func TestBuildImpersonationURL(t *testing.T) {
	t.Run("missing credential", func(t *testing.T) {
		got, err := BuildImpersonationURL("https://x/a?b=1", "", "https://x")
		if !errors.Is(err, ErrMissingCredential) {
			t.Fatalf("expected ErrMissingCredential, got %v", err)
		}
		if got != "" {
			t.Errorf("expected empty url, got %q", got)
		}
	})

	t.Run("exact shape", func(t *testing.T) {
		got, err := BuildImpersonationURL("https://x/a?b=1", "SID1", "https://x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "https://x/secur/frontdoor.jsp?sid=SID1&retURL=https%3A%2F%2Fx%2Fa%3Fb%3D1"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("credential is encoded", func(t *testing.T) {
		got, err := BuildImpersonationURL("/", "00DABC!a b", "https://x/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "https://x/secur/frontdoor.jsp?sid=00DABC%21a%20b&retURL=%2F"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})
}

func TestRewriteLoginLink(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{
			name: "strips existing return params",
			href: "/servlet/servlet.su?oid=00D1&suorgadminid=0051&retURL=%2F005&targetURL=%2Fhome",
			want: "/servlet/servlet.su?oid=00D1&suorgadminid=0051&isUserEntityOverride=1&retURL=https%3A%2F%2Fx%2Fhome&targetURL=https%3A%2F%2Fx%2Fhome",
		},
		{
			name: "no query",
			href: "/servlet/servlet.su",
			want: "/servlet/servlet.su?isUserEntityOverride=1&retURL=https%3A%2F%2Fx%2Fhome&targetURL=https%3A%2F%2Fx%2Fhome",
		},
		{
			name: "keeps similar keys",
			href: "/servlet/servlet.su?oid=1&myretURL=keep",
			want: "/servlet/servlet.su?oid=1&myretURL=keep&isUserEntityOverride=1&retURL=https%3A%2F%2Fx%2Fhome&targetURL=https%3A%2F%2Fx%2Fhome",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RewriteLoginLink(tt.href, "https://x/home"); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLoginAsURL(t *testing.T) {
	got := LoginAsURL("https://acme.my.salesforce.com/", "/servlet/servlet.su?oid=1", "https://acme.my.salesforce.com/")
	want := "https://acme.my.salesforce.com/servlet/servlet.su?oid=1&isUserEntityOverride=1&retURL=https%3A%2F%2Facme.my.salesforce.com%2F&targetURL=https%3A%2F%2Facme.my.salesforce.com%2F"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
