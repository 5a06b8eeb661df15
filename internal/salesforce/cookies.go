package salesforce

import (
	"context"
	"net/url"
	"strings"
)

// Cookie is the subset of a browser cookie the resolver needs.
type Cookie struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Domain string `json:"domain" yaml:"domain"`
	Path   string `json:"path,omitempty" yaml:"path"`
	Secure bool   `json:"secure" yaml:"secure"`
}

// HostDomain returns the cookie domain without the leading dot of domain cookies.
func (c Cookie) HostDomain() string {
	return strings.TrimPrefix(c.Domain, ".")
}

// CookieFilter narrows Cookies results. Empty fields match everything.
type CookieFilter struct {
	Name string
	// Domain matches cookies whose domain equals or is a subdomain of it.
	Domain string
	// Secure, when non-nil, requires the cookie's secure flag to equal it.
	Secure *bool
}

// CookieStore reads cookies from one isolated cookie partition (a browser
// context, container or profile) identified by storeID. The empty storeID is
// the default partition.
type CookieStore interface {
	// Cookie returns the named cookie that would be sent to rawURL, or nil.
	Cookie(ctx context.Context, storeID, rawURL, name string) (*Cookie, error)
	// Cookies returns every cookie matching filter.
	Cookies(ctx context.Context, storeID string, filter CookieFilter) ([]Cookie, error)
}

// DomainMatches reports whether cookieDomain equals or is a subdomain of domain.
func DomainMatches(cookieDomain, domain string) bool {
	cd := strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	d := strings.ToLower(strings.TrimPrefix(domain, "."))
	if d == "" {
		return true
	}
	return cd == d || strings.HasSuffix(cd, "."+d)
}

// Match reports whether c satisfies the filter.
func (f CookieFilter) Match(c Cookie) bool {
	if f.Name != "" && c.Name != f.Name {
		return false
	}
	if f.Domain != "" && !DomainMatches(c.Domain, f.Domain) {
		return false
	}
	if f.Secure != nil && c.Secure != *f.Secure {
		return false
	}
	return true
}

// SelectForURL picks, from cookies, the named cookie a browser would send to
// rawURL: the domain must cover the host, the path must prefix the URL path,
// secure cookies need https. Longest path wins.
func SelectForURL(cookies []Cookie, rawURL, name string) (*Cookie, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(u.Hostname())
	reqPath := u.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}

	var (
		best    *Cookie
		bestLen int
	)
	for i := range cookies {
		c := cookies[i]
		if c.Name != name {
			continue
		}
		if !hostCovered(c.Domain, host) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		p := c.Path
		if p == "" {
			p = "/"
		}
		if !strings.HasPrefix(reqPath, p) {
			continue
		}
		if best == nil || len(p) > bestLen {
			best = &c
			bestLen = len(p)
		}
	}
	return best, nil
}

// hostCovered applies cookie domain matching: a leading dot (domain cookie)
// covers subdomains, a bare domain is host-only.
func hostCovered(cookieDomain, host string) bool {
	cd := strings.ToLower(cookieDomain)
	if strings.HasPrefix(cd, ".") {
		return host == strings.TrimPrefix(cd, ".") || strings.HasSuffix(host, cd)
	}
	return cd == host
}
