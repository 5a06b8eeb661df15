package salesforce

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Session is a resolved platform session. It is never cached or persisted.
type Session struct {
	Credential  string `json:"credential"`
	IssuingHost string `json:"issuingHost"`
}

// Origin returns the https origin of the issuing host.
func (s Session) Origin() string {
	return "https://" + s.IssuingHost
}

// Resolver maps a tab URL to the host that issued its session cookie.
type Resolver struct {
	store    CookieStore
	domains  []string
	parallel bool
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithParallelSearch searches candidate domains with a concurrent join
// instead of one lookup at a time. Priority order is identical either way.
func WithParallelSearch(enabled bool) ResolverOption {
	return func(r *Resolver) { r.parallel = enabled }
}

// WithCandidateDomains overrides CandidateDomains (highest priority first).
func WithCandidateDomains(domains []string) ResolverOption {
	return func(r *Resolver) {
		r.domains = append([]string(nil), domains...)
	}
}

func NewResolver(store CookieStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:   store,
		domains: append([]string(nil), CandidateDomains...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveHost returns the host whose session cookie authenticates rawURL.
// Unrelated pages yield ErrNotSalesforceDomain; when no better match exists
// the tab's own host is returned.
func (r *Resolver) ResolveHost(ctx context.Context, storeID, rawURL string) (string, error) {
	host, ok, err := ClassifyURL(rawURL)
	if err != nil {
		return "", err
	}
	if IsGatewayHost(host) {
		return host, nil
	}
	if !ok {
		return "", ErrNotSalesforceDomain
	}

	current, err := r.store.Cookie(ctx, storeID, rawURL, SessionCookieName)
	if err != nil {
		return "", fmt.Errorf("lookup %s cookie on %s: %w", SessionCookieName, host, err)
	}
	if current == nil {
		return host, nil
	}

	orgID := OrgID(current.Value)
	if orgID == "" {
		return host, nil
	}

	match, err := r.searchDomains(ctx, storeID, orgID)
	if err != nil {
		return "", err
	}
	if match == nil {
		return host, nil
	}
	return match.HostDomain(), nil
}

// Session returns the session cookie for sfHost, falling back to the cookie
// on fallbackURL (the caller's current page) when sfHost has none.
func (r *Resolver) Session(ctx context.Context, storeID, sfHost, fallbackURL string) (*Session, error) {
	if sfHost != "" {
		c, err := r.store.Cookie(ctx, storeID, "https://"+sfHost, SessionCookieName)
		if err != nil {
			return nil, fmt.Errorf("lookup %s cookie on %s: %w", SessionCookieName, sfHost, err)
		}
		if c != nil {
			issuing := c.HostDomain()
			if issuing == "" {
				issuing = sfHost
			}
			return &Session{Credential: c.Value, IssuingHost: issuing}, nil
		}
	}

	if fallbackURL == "" {
		return nil, ErrNoSession
	}
	fallbackHost, err := ParseHost(fallbackURL)
	if err != nil {
		return nil, err
	}
	c, err := r.store.Cookie(ctx, storeID, fallbackURL, SessionCookieName)
	if err != nil {
		return nil, fmt.Errorf("lookup %s cookie on %s: %w", SessionCookieName, fallbackHost, err)
	}
	if c == nil {
		return nil, ErrNoSession
	}
	return &Session{Credential: c.Value, IssuingHost: fallbackHost}, nil
}

// Resolve runs ResolveHost followed by Session for the same URL.
func (r *Resolver) Resolve(ctx context.Context, storeID, rawURL string) (*Session, error) {
	host, err := r.ResolveHost(ctx, storeID, rawURL)
	if err != nil {
		return nil, err
	}
	return r.Session(ctx, storeID, host, rawURL)
}

type lookupResult struct {
	match *Cookie
	err   error
}

// searchDomains returns the first qualifying cookie in priority order. A
// lower-priority hit never wins over a higher-priority one, regardless of
// which lookup completes first.
func (r *Resolver) searchDomains(ctx context.Context, storeID, orgID string) (*Cookie, error) {
	results := make([]lookupResult, len(r.domains))

	if r.parallel {
		var wg sync.WaitGroup
		for i, domain := range r.domains {
			wg.Add(1)
			go func(i int, domain string) {
				defer wg.Done()
				results[i] = r.lookup(ctx, storeID, domain, orgID)
			}(i, domain)
		}
		wg.Wait()
	}

	for i, domain := range r.domains {
		if !r.parallel {
			results[i] = r.lookup(ctx, storeID, domain, orgID)
		}
		res := results[i]
		if res.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Printf("[resolver] cookie lookup for %s failed: %v", domain, res.err)
			continue
		}
		if res.match != nil {
			return res.match, nil
		}
	}
	return nil, nil
}

func (r *Resolver) lookup(ctx context.Context, storeID, domain, orgID string) lookupResult {
	secure := true
	cookies, err := r.store.Cookies(ctx, storeID, CookieFilter{
		Name:   SessionCookieName,
		Domain: domain,
		Secure: &secure,
	})
	if err != nil {
		return lookupResult{err: err}
	}
	return lookupResult{match: qualifying(cookies, orgID)}
}

func qualifying(cookies []Cookie, orgID string) *Cookie {
	prefix := orgID + "!"
	for i := range cookies {
		c := cookies[i]
		if !strings.HasPrefix(c.Value, prefix) {
			continue
		}
		if strings.EqualFold(c.HostDomain(), HelpDomain) {
			continue
		}
		return &c
	}
	return nil
}
