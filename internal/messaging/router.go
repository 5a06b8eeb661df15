// Package messaging implements the add-on message contract: host lookup,
// session lookup and private-window requests, each traced and recorded as
// activity facts.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"quickloginas-mcp-server/internal/browser"
	"quickloginas-mcp-server/internal/mangle"
	"quickloginas-mcp-server/internal/recorder"
	"quickloginas-mcp-server/internal/salesforce"
)

// Message kinds.
const (
	KindGetSfHost          = "getSfHost"
	KindGetSession         = "getSession"
	KindOpenIncognitoLogin = "openIncognitoLogin"
	KindCreateWindow       = "createWindow"
)

// ErrUnknownMessage is returned for requests with an unrecognised kind.
var ErrUnknownMessage = errors.New("unknown message")

// Request is one message. Host and session lookups use "message"; the
// private-window request uses "action".
type Request struct {
	Message   string `json:"message,omitempty"`
	Action    string `json:"action,omitempty"`
	URL       string `json:"url,omitempty"`
	SFHost    string `json:"sfHost,omitempty"`
	Incognito bool   `json:"incognito,omitempty"`
	// StoreID selects the cookie partition; empty is the default one.
	StoreID string `json:"storeId,omitempty"`
}

// Kind returns the request kind.
func (r Request) Kind() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Action
}

// WindowOpener opens browser windows.
type WindowOpener interface {
	OpenWindow(ctx context.Context, url string, incognito bool) (*browser.Window, error)
}

// FactSink receives activity facts.
type FactSink interface {
	AddFacts(ctx context.Context, facts []mangle.Fact) error
}

// Tracer records message round trips.
type Tracer interface {
	Record(rt recorder.RoundTrip)
}

// Router answers messages. Every exchange resolves afresh; nothing is cached.
type Router struct {
	resolver *salesforce.Resolver
	windows  WindowOpener
	sink     FactSink
	tracer   Tracer
}

// NewRouter creates a router. windows, sink and tracer may be nil.
func NewRouter(resolver *salesforce.Resolver, windows WindowOpener, sink FactSink, tracer Tracer) *Router {
	return &Router{resolver: resolver, windows: windows, sink: sink, tracer: tracer}
}

// Dispatch answers req. Host and session lookups answer nil (JSON null)
// when there is nothing to return.
func (r *Router) Dispatch(ctx context.Context, req Request) (interface{}, error) {
	switch req.Kind() {
	case KindGetSfHost:
		host, err := r.GetSfHost(ctx, req.StoreID, req.URL)
		if errors.Is(err, salesforce.ErrNotSalesforceDomain) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return host, nil
	case KindGetSession:
		session, err := r.GetSession(ctx, req.StoreID, req.SFHost, req.URL)
		if errors.Is(err, salesforce.ErrNoSession) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	case KindOpenIncognitoLogin:
		w, err := r.OpenIncognitoLogin(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		return w, nil
	case KindCreateWindow:
		w, err := r.CreateWindow(ctx, req.URL, req.Incognito)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		r.trace(recorder.RoundTrip{Kind: req.Kind(), Outcome: recorder.OutcomeRejected})
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, req.Kind())
	}
}

// GetSfHost returns the host whose session authenticates rawURL.
func (r *Router) GetSfHost(ctx context.Context, storeID, rawURL string) (string, error) {
	start := time.Now()
	tabHost, _ := salesforce.ParseHost(rawURL)

	host, err := r.resolver.ResolveHost(ctx, storeID, rawURL)
	rt := recorder.RoundTrip{Kind: KindGetSfHost, StoreID: storeID, Host: tabHost, ElapsedMS: time.Since(start).Milliseconds()}
	switch {
	case errors.Is(err, salesforce.ErrNotSalesforceDomain):
		rt.Outcome = recorder.OutcomeNull
		r.emit(ctx, "not_salesforce", storeID, tabHost)
	case err != nil:
		rt.Outcome = recorder.OutcomeError
		rt.Detail = err.Error()
		log.Printf("[messaging] getSfHost for %s failed: %v", tabHost, err)
	default:
		rt.Outcome = recorder.OutcomeOK
		rt.Detail = host
		r.emit(ctx, "sf_host_resolved", storeID, tabHost, host)
	}
	r.trace(rt)
	return host, err
}

// GetSession returns the session for sfHost, falling back to the cookie on
// pageURL (the caller's current page).
func (r *Router) GetSession(ctx context.Context, storeID, sfHost, pageURL string) (*salesforce.Session, error) {
	start := time.Now()
	session, err := r.resolver.Session(ctx, storeID, sfHost, pageURL)
	rt := recorder.RoundTrip{Kind: KindGetSession, StoreID: storeID, Host: sfHost, ElapsedMS: time.Since(start).Milliseconds()}
	switch {
	case errors.Is(err, salesforce.ErrNoSession):
		rt.Outcome = recorder.OutcomeNull
		r.emit(ctx, "no_session", storeID, sfHost)
	case err != nil:
		rt.Outcome = recorder.OutcomeError
		rt.Detail = err.Error()
		log.Printf("[messaging] getSession for %s failed: %v", sfHost, err)
	default:
		rt.Outcome = recorder.OutcomeOK
		rt.Detail = session.IssuingHost
		r.emit(ctx, "session_resolved", storeID, session.IssuingHost)
	}
	r.trace(rt)
	return session, err
}

// ResolveSession performs the getSfHost then getSession round trip for a
// page, which may be given as a URL or a bare host.
func (r *Router) ResolveSession(ctx context.Context, storeID, page string) (*salesforce.Session, error) {
	pageURL := page
	if !strings.Contains(page, "://") {
		pageURL = "https://" + page
	}
	host, err := r.GetSfHost(ctx, storeID, pageURL)
	if err != nil {
		return nil, err
	}
	return r.GetSession(ctx, storeID, host, pageURL)
}

// OpenIncognitoLogin opens a private window on an impersonation URL.
func (r *Router) OpenIncognitoLogin(ctx context.Context, rawURL string) (*browser.Window, error) {
	w, err := r.openWindow(ctx, KindOpenIncognitoLogin, rawURL, true)
	if err != nil {
		return nil, err
	}
	host, _ := salesforce.ParseHost(rawURL)
	r.emit(ctx, "incognito_opened", w.ID, host)
	return w, nil
}

// CreateWindow opens a window, private when incognito is set.
func (r *Router) CreateWindow(ctx context.Context, rawURL string, incognito bool) (*browser.Window, error) {
	return r.openWindow(ctx, KindCreateWindow, rawURL, incognito)
}

func (r *Router) openWindow(ctx context.Context, kind, rawURL string, incognito bool) (*browser.Window, error) {
	start := time.Now()
	host, _ := salesforce.ParseHost(rawURL)
	rt := recorder.RoundTrip{Kind: kind, Host: host}

	if r.windows == nil {
		rt.Outcome = recorder.OutcomeError
		rt.Detail = browser.ErrNotConnected.Error()
		r.trace(rt)
		return nil, browser.ErrNotConnected
	}

	w, err := r.windows.OpenWindow(ctx, rawURL, incognito)
	rt.ElapsedMS = time.Since(start).Milliseconds()
	if err != nil {
		rt.Outcome = recorder.OutcomeError
		rt.Detail = err.Error()
		r.trace(rt)
		log.Printf("[messaging] %s for %s failed: %v", kind, host, err)
		return nil, err
	}
	rt.Outcome = recorder.OutcomeOK
	rt.StoreID = w.StoreID
	rt.Detail = w.ID
	r.trace(rt)
	return w, nil
}

func (r *Router) trace(rt recorder.RoundTrip) {
	if r.tracer != nil {
		r.tracer.Record(rt)
	}
}

func (r *Router) emit(ctx context.Context, predicate string, args ...interface{}) {
	if r.sink == nil {
		return
	}
	if err := r.sink.AddFacts(ctx, []mangle.Fact{{Predicate: predicate, Args: args, Timestamp: time.Now()}}); err != nil {
		log.Printf("[messaging] failed to record %s: %v", predicate, err)
	}
}
