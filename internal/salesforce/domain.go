// Package salesforce classifies platform hostnames and resolves which session
// cookie (and issuing host) a browser tab is authenticated with.
package salesforce

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// GatewaySuffix marks hosts fronted by the Defender for Cloud Apps proxy.
// Such hosts are used verbatim and never looked up in the cookie store.
const GatewaySuffix = ".mcas.ms"

// HelpDomain hosts public documentation and sets its own sid cookie.
const HelpDomain = "help.salesforce.com"

// SessionCookieName is the platform's primary authentication cookie.
const SessionCookieName = "sid"

var (
	// ErrNotSalesforceDomain is the expected negative for unrelated pages.
	ErrNotSalesforceDomain = errors.New("not a salesforce domain")
	// ErrNoSession means no qualifying session cookie exists for the host.
	ErrNoSession = errors.New("no salesforce session")
)

// hostMarkers are the substrings that identify production, government, China
// and custom-domain (my.salesforce.com, lightning.force.com, ...) hosts.
var hostMarkers = []string{
	"salesforce.com",
	"force.com",
	"cloudforce.com",
	"salesforce.mil",
	"cloudforce.mil",
	"sfcrmproducts.cn",
}

// CandidateDomains lists the top-level suffixes searched for a session cookie,
// highest priority first.
var CandidateDomains = []string{
	"salesforce.com",
	"cloudforce.com",
	"salesforce.mil",
	"cloudforce.mil",
	"sfcrmproducts.cn",
	"force.com",
}

// ParseHost extracts the lowercase hostname from an absolute URL.
func ParseHost(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("parse url %q: missing scheme or host", raw)
	}
	return strings.ToLower(u.Hostname()), nil
}

// IsGatewayHost reports whether host sits behind the security gateway proxy.
func IsGatewayHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), GatewaySuffix)
}

// IsSalesforceHost reports whether host belongs to the platform family.
// Gateway hosts count as pass-through aliases.
func IsSalesforceHost(host string) bool {
	host = strings.ToLower(host)
	if IsGatewayHost(host) {
		return true
	}
	for _, marker := range hostMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

// ClassifyURL parses raw and reports whether it targets the platform.
// Malformed URLs return an error rather than a silent false.
func ClassifyURL(raw string) (string, bool, error) {
	host, err := ParseHost(raw)
	if err != nil {
		return "", false, err
	}
	return host, IsSalesforceHost(host), nil
}

// OrgID returns the organization identifier prefixing a session cookie value.
func OrgID(cookieValue string) string {
	orgID, _, _ := strings.Cut(cookieValue, "!")
	return orgID
}
