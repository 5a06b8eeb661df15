package salesforce

import "testing"

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantOK   bool
	}{
		{"lightning", "https://acme.lightning.force.com/lightning/page/home", "acme.lightning.force.com", true},
		{"my domain", "https://acme.my.salesforce.com/005", "acme.my.salesforce.com", true},
		{"visualforce", "https://acme--c.vf.force.com/apex/Page", "acme--c.vf.force.com", true},
		{"cloudforce", "https://acme.cloudforce.com/home", "acme.cloudforce.com", true},
		{"government", "https://acme.my.salesforce.mil/", "acme.my.salesforce.mil", true},
		{"china", "https://acme.my.sfcrmproducts.cn/", "acme.my.sfcrmproducts.cn", true},
		{"gateway", "https://acme.my.salesforce.com.mcas.ms/home", "acme.my.salesforce.com.mcas.ms", true},
		{"gateway unrelated", "https://portal.mcas.ms/", "portal.mcas.ms", true},
		{"uppercase", "https://ACME.My.Salesforce.COM/", "acme.my.salesforce.com", true},
		{"unrelated", "https://example.com/force", "example.com", false},
		{"lookalike path", "https://evil.example.org/salesforce.com", "evil.example.org", false},
		{"mcas infix", "https://mcas.ms.example.com/", "mcas.ms.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, ok, err := ClassifyURL(tt.url)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tt.wantHost {
				t.Errorf("expected host %q, got %q", tt.wantHost, host)
			}
			if ok != tt.wantOK {
				t.Errorf("expected ok=%v, got %v", tt.wantOK, ok)
			}
		})
	}
}

func TestClassifyURLMalformed(t *testing.T) {
	for _, raw := range []string{"", "not a url", "acme.my.salesforce.com/home", "https://", "://bad", "http://[::1"} {
		t.Run(raw, func(t *testing.T) {
			if _, _, err := ClassifyURL(raw); err == nil {
				t.Errorf("expected parse error for %q", raw)
			}
		})
	}
}

func TestOrgID(t *testing.T) {
	tests := map[string]string{
		"00DABC!XYZ123":  "00DABC",
		"00DABC!XYZ!123": "00DABC",
		"00DABC":         "00DABC",
		"!leading":       "",
		"":               "",
	}
	for value, want := range tests {
		if got := OrgID(value); got != want {
			t.Errorf("OrgID(%q) = %q, want %q", value, got, want)
		}
	}
}

func TestIsGatewayHost(t *testing.T) {
	if !IsGatewayHost("acme.my.salesforce.com.MCAS.ms") {
		t.Error("expected gateway host to match case-insensitively")
	}
	if IsGatewayHost("acme.my.salesforce.com") {
		t.Error("expected plain platform host not to be a gateway host")
	}
}
