package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"quickloginas-mcp-server/internal/browser"
	"quickloginas-mcp-server/internal/frontdoor"
	"quickloginas-mcp-server/internal/messaging"
	"quickloginas-mcp-server/internal/salesforce"
	"quickloginas-mcp-server/internal/userlist"
)

// resolveForLogin resolves the session for page and reports a missing one as
// ErrMissingCredential.
func resolveForLogin(ctx context.Context, router *messaging.Router, storeID, page string) (*salesforce.Session, error) {
	session, err := router.ResolveSession(ctx, storeID, page)
	switch {
	case errors.Is(err, salesforce.ErrNotSalesforceDomain):
		return nil, fmt.Errorf("%s is not a Salesforce page: %w", page, err)
	case errors.Is(err, salesforce.ErrNoSession):
		return nil, fmt.Errorf("%w (%w)", frontdoor.ErrMissingCredential, err)
	case err != nil:
		return nil, err
	}
	return session, nil
}

// defaultReturnURL is where an impersonated session lands: the page itself
// when it is a URL, otherwise the org's home.
func defaultReturnURL(page string, session *salesforce.Session) string {
	if strings.Contains(page, "://") {
		return page
	}
	return session.Origin() + "/"
}

// GetSfHostTool answers the getSfHost message.
type GetSfHostTool struct {
	router *messaging.Router
}

func (t *GetSfHostTool) Name() string { return "get-sf-host" }
func (t *GetSfHostTool) Description() string {
	return `Resolve which Salesforce host issued the session behind a tab URL.

A Lightning tab (acme.lightning.force.com) is usually authenticated by the
org's my-domain session (acme.my.salesforce.com). This searches the known
platform domains for a secure sid cookie of the same org.

Returns: {sfHost} - null when the URL is not a Salesforce page.`
}
func (t *GetSfHostTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"url":      stringProp("Absolute URL of the tab"),
		"store_id": stringProp("Cookie store (browser context) id; empty for the default profile"),
	}, "url")
}
func (t *GetSfHostTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rawURL := getStringArg(args, "url")
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	host, err := t.router.Dispatch(ctx, messaging.Request{
		Message: messaging.KindGetSfHost,
		URL:     rawURL,
		StoreID: getStringArg(args, "store_id"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"sfHost": host}, nil
}

// GetSessionTool answers the getSession message.
type GetSessionTool struct {
	router *messaging.Router
}

func (t *GetSessionTool) Name() string { return "get-session" }
func (t *GetSessionTool) Description() string {
	return `Look up the session (sid cookie) for a Salesforce host.

Falls back to the session on the given tab URL when the host has none.
The credential is masked unless reveal is set.

Returns: {found, issuingHost, orgId, credential}`
}
func (t *GetSessionTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"sf_host":  stringProp("Host returned by get-sf-host"),
		"url":      stringProp("Current tab URL used as a fallback"),
		"store_id": stringProp("Cookie store (browser context) id"),
		"reveal":   boolProp("Return the full session id (default: false)"),
	})
}
func (t *GetSessionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sfHost := getStringArg(args, "sf_host")
	pageURL := getStringArg(args, "url")
	if sfHost == "" && pageURL == "" {
		return nil, fmt.Errorf("sf_host or url is required")
	}
	res, err := t.router.Dispatch(ctx, messaging.Request{
		Message: messaging.KindGetSession,
		SFHost:  sfHost,
		URL:     pageURL,
		StoreID: getStringArg(args, "store_id"),
	})
	if err != nil {
		return nil, err
	}
	session, ok := res.(*salesforce.Session)
	if !ok || session == nil {
		return map[string]interface{}{"found": false}, nil
	}

	credential := maskCredential(session.Credential)
	if getBoolArg(args, "reveal", false) {
		credential = session.Credential
	}
	return map[string]interface{}{
		"found":       true,
		"issuingHost": session.IssuingHost,
		"orgId":       salesforce.OrgID(session.Credential),
		"credential":  credential,
	}, nil
}

// BuildLoginURLTool builds a frontdoor.jsp impersonation URL and optionally opens it.
type BuildLoginURLTool struct {
	router *messaging.Router
}

func (t *BuildLoginURLTool) Name() string { return "build-login-url" }
func (t *BuildLoginURLTool) Description() string {
	return `Build a frontdoor.jsp URL that logs in as another user in a fresh session.

Pass either target_url (a full login URL) or login_href (the Login link
from the Setup user list; it is rewritten to return to return_url).
The session is resolved from page (tab URL or host).

With open=true the URL is opened in a private window and only the window is returned.

Returns: {url} or {window}`
}
func (t *BuildLoginURLTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"page":       stringProp("Tab URL or Salesforce host whose session is used"),
		"target_url": stringProp("Absolute login URL to open after the session exchange"),
		"login_href": stringProp("Login link from the user list (relative or absolute)"),
		"return_url": stringProp("Where the impersonated session lands (default: page)"),
		"store_id":   stringProp("Cookie store (browser context) id"),
		"open":       boolProp("Open the URL in a private window (default: false)"),
	}, "page")
}
func (t *BuildLoginURLTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	page := getStringArg(args, "page")
	if page == "" {
		return nil, fmt.Errorf("page is required")
	}
	target := getStringArg(args, "target_url")
	href := getStringArg(args, "login_href")
	if target == "" && href == "" {
		return nil, fmt.Errorf("target_url or login_href is required")
	}

	session, err := resolveForLogin(ctx, t.router, getStringArg(args, "store_id"), page)
	if err != nil {
		return nil, err
	}
	if href != "" {
		returnURL := getStringArg(args, "return_url")
		if returnURL == "" {
			returnURL = defaultReturnURL(page, session)
		}
		target = frontdoor.LoginAsURL(session.Origin(), href, returnURL)
	}

	loginURL, err := frontdoor.BuildImpersonationURL(target, session.Credential, session.Origin())
	if err != nil {
		return nil, err
	}
	if !getBoolArg(args, "open", false) {
		return map[string]interface{}{"url": loginURL}, nil
	}

	w, err := t.router.OpenIncognitoLogin(ctx, loginURL)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"window": w}, nil
}

// OpenIncognitoLoginTool answers the openIncognitoLogin action.
type OpenIncognitoLoginTool struct {
	router *messaging.Router
}

func (t *OpenIncognitoLoginTool) Name() string { return "open-incognito-login" }
func (t *OpenIncognitoLoginTool) Description() string {
	return `Open a URL (usually from build-login-url) in a new private window.

The window gets its own browser context, so the impersonated session never
touches the admin's cookies. Close it with shutdown-browser or by closing the window.

Returns: {window: {id, targetId, storeId, url, incognito}}`
}
func (t *OpenIncognitoLoginTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"url": stringProp("Absolute http(s) URL to open"),
	}, "url")
}
func (t *OpenIncognitoLoginTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rawURL := getStringArg(args, "url")
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	res, err := t.router.Dispatch(ctx, messaging.Request{
		Action: messaging.KindOpenIncognitoLogin,
		URL:    rawURL,
	})
	if err != nil {
		return nil, err
	}
	w, _ := res.(*browser.Window)
	return map[string]interface{}{"window": w}, nil
}

// ListLoginUsersTool lists users from the Setup user list with their Login-As links.
type ListLoginUsersTool struct {
	router   *messaging.Router
	pages    PageSource
	pageSize int
}

func (t *ListLoginUsersTool) Name() string { return "list-login-users" }
func (t *ListLoginUsersTool) Description() string {
	return `List org users from the Setup user list, with a ready-made Login-As URL per user.

Only users the admin may log in as carry loginUrl. Use filter to narrow by
name, username, role or profile text; login_only to drop the rest.
Pass the returned views[].id as view_id to switch list views.

Returns: {headers, users: [{name, cells, loginUrl, detailUrl}], views, start, pageSize, hasNext, hasPrev, loginable, matched}`
}
func (t *ListLoginUsersTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"page":       stringProp("Tab URL or Salesforce host whose session is used"),
		"store_id":   stringProp("Cookie store (browser context) id"),
		"view_id":    stringProp("List view id (fcf)"),
		"start":      intProp("Row offset (default: 0)"),
		"page_size":  intProp("Rows per page"),
		"filter":     stringProp("Case-insensitive substring filter"),
		"login_only": boolProp("Only users with a Login action (default: false)"),
		"return_url": stringProp("Where the impersonated session lands (default: page)"),
	}, "page")
}
func (t *ListLoginUsersTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.pages == nil {
		return nil, fmt.Errorf("user listing is not configured")
	}
	page := getStringArg(args, "page")
	if page == "" {
		return nil, fmt.Errorf("page is required")
	}

	session, err := resolveForLogin(ctx, t.router, getStringArg(args, "store_id"), page)
	if err != nil {
		return nil, err
	}
	returnURL := getStringArg(args, "return_url")
	if returnURL == "" {
		returnURL = defaultReturnURL(page, session)
	}

	list, err := userlist.Fetch(ctx, t.pages(session), session, userlist.Request{
		ViewID:    getStringArg(args, "view_id"),
		Start:     getIntArg(args, "start", 0),
		PageSize:  getIntArg(args, "page_size", t.pageSize),
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, err
	}
	list.Users = userlist.Filter(list.Users, getStringArg(args, "filter"), getBoolArg(args, "login_only", false))

	return map[string]interface{}{
		"headers":   list.Headers,
		"users":     list.Users,
		"views":     list.Views,
		"start":     list.Start,
		"pageSize":  list.PageSize,
		"hasNext":   list.HasNext,
		"hasPrev":   list.HasPrev,
		"nextStart": list.NextStart(),
		"prevStart": list.PrevStart(),
		"loginable": list.Loginable,
		"matched":   len(list.Users),
	}, nil
}
