package browser

import (
	"context"

	"github.com/go-rod/rod/lib/proto"

	"quickloginas-mcp-server/internal/salesforce"
)

type cookieSource func(ctx context.Context, storeID string) ([]*proto.NetworkCookie, error)

// CookieJar reads cookie partitions of the connected browser. It implements
// salesforce.CookieStore with browser context ids as store ids.
type CookieJar struct {
	source cookieSource
}

func NewCookieJar(m *SessionManager) *CookieJar {
	return &CookieJar{source: m.storageCookies}
}

func (j *CookieJar) all(ctx context.Context, storeID string) ([]salesforce.Cookie, error) {
	raw, err := j.source(ctx, storeID)
	if err != nil {
		return nil, err
	}
	out := make([]salesforce.Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		out = append(out, salesforce.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Secure: c.Secure,
		})
	}
	return out, nil
}

func (j *CookieJar) Cookie(ctx context.Context, storeID, rawURL, name string) (*salesforce.Cookie, error) {
	cookies, err := j.all(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return salesforce.SelectForURL(cookies, rawURL, name)
}

func (j *CookieJar) Cookies(ctx context.Context, storeID string, filter salesforce.CookieFilter) ([]salesforce.Cookie, error) {
	cookies, err := j.all(ctx, storeID)
	if err != nil {
		return nil, err
	}
	var out []salesforce.Cookie
	for _, c := range cookies {
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}
