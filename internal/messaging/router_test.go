package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quickloginas-mcp-server/internal/browser"
	"quickloginas-mcp-server/internal/inspector"
	"quickloginas-mcp-server/internal/mangle"
	"quickloginas-mcp-server/internal/recorder"
	"quickloginas-mcp-server/internal/salesforce"
)

var _ inspector.SessionSource = (*Router)(nil)

type fakeWindows struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (f *fakeWindows) OpenWindow(ctx context.Context, url string, incognito bool) (*browser.Window, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	w := &browser.Window{ID: "win-1", URL: url, Incognito: incognito, CreatedAt: time.Now()}
	if incognito {
		w.StoreID = "ctx-private"
	}
	return w, nil
}

type memTracer struct {
	trips []recorder.RoundTrip
}

func (m *memTracer) Record(rt recorder.RoundTrip) { m.trips = append(m.trips, rt) }

type memSink struct {
	facts []mangle.Fact
}

func (m *memSink) AddFacts(ctx context.Context, facts []mangle.Fact) error {
	m.facts = append(m.facts, facts...)
	return nil
}

func (m *memSink) has(predicate string) bool {
	for _, f := range m.facts {
		if f.Predicate == predicate {
			return true
		}
	}
	return false
}

func newTestRouter() (*Router, *fakeWindows, *memTracer, *memSink) {
	store := salesforce.NewMemoryStore()
	store.Add("", salesforce.Cookie{Name: "sid", Value: "00DABC!lightning", Domain: "acme.lightning.force.com", Path: "/", Secure: true})
	store.Add("", salesforce.Cookie{Name: "sid", Value: "00DABC!core", Domain: "acme.my.salesforce.com", Path: "/", Secure: true})
	windows := &fakeWindows{}
	tracer := &memTracer{}
	sink := &memSink{}
	return NewRouter(salesforce.NewResolver(store), windows, sink, tracer), windows, tracer, sink
}

func TestDispatchGetSfHost(t *testing.T) {
	r, _, tracer, sink := newTestRouter()
	ctx := context.Background()

	got, err := r.Dispatch(ctx, Request{Message: KindGetSfHost, URL: "https://acme.lightning.force.com/lightning/page/home"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme.my.salesforce.com" {
		t.Errorf("expected acme.my.salesforce.com, got %v", got)
	}

	got, err = r.Dispatch(ctx, Request{Message: KindGetSfHost, URL: "https://example.com/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unrelated page, got %v", got)
	}

	if _, err := r.Dispatch(ctx, Request{Message: KindGetSfHost, URL: "not a url"}); err == nil {
		t.Error("expected parse error for malformed url")
	}

	if len(tracer.trips) != 3 {
		t.Fatalf("expected 3 traced round trips, got %d", len(tracer.trips))
	}
	if tracer.trips[0].Outcome != recorder.OutcomeOK || tracer.trips[1].Outcome != recorder.OutcomeNull || tracer.trips[2].Outcome != recorder.OutcomeError {
		t.Errorf("unexpected outcomes %+v", tracer.trips)
	}
	if !sink.has("sf_host_resolved") || !sink.has("not_salesforce") {
		t.Errorf("expected host facts, got %+v", sink.facts)
	}
}

func TestDispatchGetSession(t *testing.T) {
	r, _, tracer, sink := newTestRouter()
	ctx := context.Background()

	got, err := r.Dispatch(ctx, Request{Message: KindGetSession, SFHost: "acme.my.salesforce.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := got.(*salesforce.Session)
	if !ok || s.Credential != "00DABC!core" || s.IssuingHost != "acme.my.salesforce.com" {
		t.Errorf("unexpected session %+v", got)
	}

	got, err = r.Dispatch(ctx, Request{Message: KindGetSession, SFHost: "nobody.my.salesforce.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil without a session, got %v", got)
	}
	if !sink.has("no_session") || !sink.has("session_resolved") {
		t.Errorf("expected session facts, got %+v", sink.facts)
	}

	for _, rt := range tracer.trips {
		b, _ := json.Marshal(rt)
		if strings.Contains(string(b), "00DABC!") {
			t.Errorf("credential leaked into trace: %s", b)
		}
	}
}

func TestDispatchWindows(t *testing.T) {
	r, windows, tracer, sink := newTestRouter()
	ctx := context.Background()

	got, err := r.Dispatch(ctx, Request{Action: KindOpenIncognitoLogin, URL: "https://acme.my.salesforce.com/secur/frontdoor.jsp?sid=x&retURL=%2F"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, ok := got.(*browser.Window)
	if !ok || !w.Incognito || w.StoreID != "ctx-private" {
		t.Errorf("unexpected window %+v", got)
	}
	if !sink.has("incognito_opened") {
		t.Error("expected incognito_opened fact")
	}

	got, err = r.Dispatch(ctx, Request{Message: KindCreateWindow, URL: "https://acme.my.salesforce.com/005", Incognito: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w := got.(*browser.Window); w.Incognito {
		t.Error("expected a regular window")
	}
	if len(windows.opened) != 2 {
		t.Errorf("expected 2 windows opened, got %d", len(windows.opened))
	}
	for _, rt := range tracer.trips {
		if strings.Contains(rt.Detail, "sid=") {
			t.Errorf("impersonation url leaked into trace: %+v", rt)
		}
	}

	windows.err = errors.New("cdp: browser closed")
	got, err = r.Dispatch(ctx, Request{Action: KindOpenIncognitoLogin, URL: "https://acme.my.salesforce.com/"})
	if err == nil || got != nil {
		t.Errorf("expected error and nil response, got %v / %v", got, err)
	}
}

func TestDispatchWithoutBrowser(t *testing.T) {
	r := NewRouter(salesforce.NewResolver(salesforce.NewMemoryStore()), nil, nil, nil)
	_, err := r.Dispatch(context.Background(), Request{Message: KindCreateWindow, URL: "https://acme.my.salesforce.com/"})
	if !errors.Is(err, browser.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDispatchUnknown(t *testing.T) {
	r, _, tracer, _ := newTestRouter()
	_, err := r.Dispatch(context.Background(), Request{Message: "getCoffee"})
	if !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}
	if len(tracer.trips) != 1 || tracer.trips[0].Outcome != recorder.OutcomeRejected {
		t.Errorf("expected rejected trace, got %+v", tracer.trips)
	}
}

func TestResolveSession(t *testing.T) {
	r, _, _, _ := newTestRouter()
	ctx := context.Background()

	tests := []struct {
		name string
		page string
		want string
	}{
		{"lightning url", "https://acme.lightning.force.com/lightning/r/Account/001000000000001AAA/view", "00DABC!core"},
		{"bare host", "acme.my.salesforce.com", "00DABC!core"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.ResolveSession(ctx, "", tt.page)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Credential != tt.want {
				t.Errorf("expected %s, got %s", tt.want, s.Credential)
			}
		})
	}

	if _, err := r.ResolveSession(ctx, "", "example.com"); !errors.Is(err, salesforce.ErrNotSalesforceDomain) {
		t.Errorf("expected ErrNotSalesforceDomain, got %v", err)
	}
}
