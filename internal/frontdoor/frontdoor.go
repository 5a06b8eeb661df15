// Package frontdoor builds the platform's documented re-authentication
// redirect (secur/frontdoor.jsp) used to open a Login-As session in a
// private window.
package frontdoor

import (
	"errors"
	"net/url"
	"strings"
)

// Path is the session-exchange endpoint on every platform host.
const Path = "/secur/frontdoor.jsp"

// ErrMissingCredential is returned when no session credential is available.
// Callers surface it as "not logged in".
var ErrMissingCredential = errors.New("session credential is missing, log in first")

// EncodeComponent escapes s the way a browser's encodeURIComponent does for
// query values: spaces become %20, never '+'.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// BuildImpersonationURL returns
// <origin>/secur/frontdoor.jsp?sid=<credential>&retURL=<target>.
func BuildImpersonationURL(targetLoginURL, credential, issuingOrigin string) (string, error) {
	if credential == "" {
		return "", ErrMissingCredential
	}
	origin := strings.TrimRight(issuingOrigin, "/")
	return origin + Path + "?sid=" + EncodeComponent(credential) + "&retURL=" + EncodeComponent(targetLoginURL), nil
}

// RewriteLoginLink drops any retURL/targetURL from a user-list Login link and
// appends the parameters that bring the impersonated session back to
// returnURL.
func RewriteLoginLink(href, returnURL string) string {
	base, rawQuery, hasQuery := strings.Cut(href, "?")
	var kept []string
	if hasQuery {
		for _, part := range strings.Split(rawQuery, "&") {
			if part == "" {
				continue
			}
			key, _, _ := strings.Cut(part, "=")
			if key == "retURL" || key == "targetURL" {
				continue
			}
			kept = append(kept, part)
		}
	}
	kept = append(kept,
		"isUserEntityOverride=1",
		"retURL="+EncodeComponent(returnURL),
		"targetURL="+EncodeComponent(returnURL),
	)
	return base + "?" + strings.Join(kept, "&")
}

// LoginAsURL joins origin with the rewritten relative Login link.
func LoginAsURL(origin, href, returnURL string) string {
	rewritten := RewriteLoginLink(href, returnURL)
	if strings.HasPrefix(rewritten, "https://") || strings.HasPrefix(rewritten, "http://") {
		return rewritten
	}
	return strings.TrimRight(origin, "/") + rewritten
}
