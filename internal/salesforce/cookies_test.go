package salesforce

import "testing"

func TestDomainMatches(t *testing.T) {
	tests := []struct {
		cookie string
		filter string
		want   bool
	}{
		{"acme.my.salesforce.com", "salesforce.com", true},
		{".salesforce.com", "salesforce.com", true},
		{"salesforce.com", "salesforce.com", true},
		{"acme.my.salesforce.com", "force.com", false},
		{"acme.lightning.force.com", "force.com", true},
		{"help.salesforce.com", "salesforce.com", true},
		{"anything.example", "", true},
	}
	for _, tt := range tests {
		if got := DomainMatches(tt.cookie, tt.filter); got != tt.want {
			t.Errorf("DomainMatches(%q, %q) = %v, want %v", tt.cookie, tt.filter, got, tt.want)
		}
	}
}

func TestCookieFilterMatch(t *testing.T) {
	secure := true
	f := CookieFilter{Name: "sid", Domain: "salesforce.com", Secure: &secure}

	if !f.Match(Cookie{Name: "sid", Domain: "acme.my.salesforce.com", Secure: true}) {
		t.Error("expected secure sid cookie to match")
	}
	if f.Match(Cookie{Name: "sid", Domain: "acme.my.salesforce.com", Secure: false}) {
		t.Error("expected insecure cookie to be filtered out")
	}
	if f.Match(Cookie{Name: "oid", Domain: "acme.my.salesforce.com", Secure: true}) {
		t.Error("expected other cookie names to be filtered out")
	}
}

func TestSelectForURL(t *testing.T) {
	cookies := []Cookie{
		{Name: "sid", Value: "host-only", Domain: "acme.my.salesforce.com", Path: "/", Secure: true},
		{Name: "sid", Value: "apex-path", Domain: "acme.my.salesforce.com", Path: "/apex", Secure: true},
		{Name: "sid", Value: "domain-wide", Domain: ".force.com", Path: "/", Secure: true},
		{Name: "sid", Value: "plain-http", Domain: "legacy.salesforce.com", Path: "/", Secure: true},
	}

	t.Run("host only", func(t *testing.T) {
		c, err := SelectForURL(cookies, "https://acme.my.salesforce.com/home", "sid")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c == nil || c.Value != "host-only" {
			t.Fatalf("expected host-only cookie, got %+v", c)
		}
	})

	t.Run("longest path wins", func(t *testing.T) {
		c, _ := SelectForURL(cookies, "https://acme.my.salesforce.com/apex/Page", "sid")
		if c == nil || c.Value != "apex-path" {
			t.Fatalf("expected apex-path cookie, got %+v", c)
		}
	})

	t.Run("domain cookie covers subdomain", func(t *testing.T) {
		c, _ := SelectForURL(cookies, "https://acme.lightning.force.com/", "sid")
		if c == nil || c.Value != "domain-wide" {
			t.Fatalf("expected domain-wide cookie, got %+v", c)
		}
	})

	t.Run("host only does not cover subdomain", func(t *testing.T) {
		c, _ := SelectForURL(cookies, "https://x.acme.my.salesforce.com/", "sid")
		if c != nil {
			t.Fatalf("expected no cookie, got %+v", c)
		}
	})

	t.Run("secure cookie skipped over http", func(t *testing.T) {
		c, _ := SelectForURL(cookies, "http://legacy.salesforce.com/", "sid")
		if c != nil {
			t.Fatalf("expected no cookie over http, got %+v", c)
		}
	})
}

func TestSelectForURLEmptyPathTie(t *testing.T) {
	cookies := []Cookie{
		{Name: "sid", Value: "first", Domain: "acme.my.salesforce.com", Path: ""},
		{Name: "sid", Value: "second", Domain: "acme.my.salesforce.com", Path: "/"},
	}
	c, err := SelectForURL(cookies, "https://acme.my.salesforce.com/home", "sid")
	if err != nil {
		t.Fatalf("SelectForURL: %v", err)
	}
	if c == nil || c.Value != "first" {
		t.Errorf("expected the first of two equally specific cookies, got %+v", c)
	}

	cookies = append(cookies, Cookie{Name: "sid", Value: "deeper", Domain: "acme.my.salesforce.com", Path: "/home"})
	c, _ = SelectForURL(cookies, "https://acme.my.salesforce.com/home", "sid")
	if c == nil || c.Value != "deeper" {
		t.Errorf("expected the longest path to win, got %+v", c)
	}
}
