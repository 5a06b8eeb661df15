package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"quickloginas-mcp-server/internal/config"
	"quickloginas-mcp-server/internal/mangle"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// ErrNotConnected is returned by operations that need a live browser.
var ErrNotConnected = errors.New("browser not connected")

// Window is a browser window opened on behalf of a caller.
type Window struct {
	ID       string `json:"id"`
	TargetID string `json:"target_id,omitempty"`
	// StoreID is the browser context id, which is also the cookie partition.
	StoreID   string    `json:"store_id,omitempty"`
	URL       string    `json:"url"`
	Incognito bool      `json:"incognito"`
	CreatedAt time.Time `json:"created_at"`
}

// Tab is any page currently open in the browser.
type Tab struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	StoreID  string `json:"store_id,omitempty"`
}

type windowRecord struct {
	meta    Window
	page    *rod.Page
	context *rod.Browser
}

// SessionManager owns the Chrome connection and the windows it opened.
type SessionManager struct {
	cfg        config.BrowserConfig
	engine     EngineSink
	mu         sync.RWMutex
	browser    *rod.Browser
	windows    map[string]*windowRecord
	controlURL string
}

// EngineSink receives activity facts.
type EngineSink interface {
	AddFacts(ctx context.Context, facts []mangle.Fact) error
}

func NewSessionManager(cfg config.BrowserConfig, sink EngineSink) *SessionManager {
	return &SessionManager{
		cfg:     cfg,
		engine:  sink,
		windows: make(map[string]*windowRecord),
	}
}

// Start connects to an existing Chrome or launches one with Rod's launcher.
// A healthy existing connection is reused.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("[browser] stale connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.windows = make(map[string]*windowRecord)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		launched, err := m.launch()
		if err != nil {
			return err
		}
		controlURL = launched
	}
	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = b
	m.controlURL = controlURL
	log.Printf("[browser] connected at %s", controlURL)
	return nil
}

func (m *SessionManager) launch() (string, error) {
	bin := m.cfg.Launch[0]
	l := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
	for _, rawFlag := range m.cfg.Launch[1:] {
		name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	u, err := l.Launch()
	if err == nil {
		return u, nil
	}
	// Let Rod pick the port and defaults.
	alt, altErr := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless()).Launch()
	if altErr != nil {
		return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
	}
	return alt, nil
}

// ControlURL returns the DevTools WebSocket URL of the connected browser.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

func (m *SessionManager) current() (*rod.Browser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.browser == nil {
		return nil, ErrNotConnected
	}
	return m.browser, nil
}

// Shutdown closes tracked windows and the browser connection.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.windows {
		m.closeRecord(rec)
		delete(m.windows, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	log.Printf("[browser] shutdown complete")
	return err
}

// List returns the tracked windows, newest first.
func (m *SessionManager) List() []Window {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Window, 0, len(m.windows))
	for _, rec := range m.windows {
		out = append(out, rec.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Window returns a tracked window by id.
func (m *SessionManager) Window(id string) (Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.windows[id]
	if !ok {
		return Window{}, false
	}
	return rec.meta, true
}

// OpenWindow opens rawURL in a new window. Incognito windows get a fresh
// browser context, so they share no cookies with any other window.
func (m *SessionManager) OpenWindow(ctx context.Context, rawURL string, incognito bool) (*Window, error) {
	if err := checkWindowURL(rawURL); err != nil {
		return nil, err
	}
	b, err := m.current()
	if err != nil {
		return nil, err
	}

	target := b
	if incognito {
		target, err = b.Incognito()
		if err != nil {
			return nil, fmt.Errorf("incognito context: %w", err)
		}
	}

	var dispose func()
	if incognito {
		dispose = func() { disposeContext(b, target.BrowserContextID) }
	}
	page, err := createPage(target, rawURL, dispose)
	if err != nil {
		return nil, err
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		log.Printf("[browser] failed to set viewport: %v", err)
	}
	// Best-effort; the window is usable while still loading.
	_ = page.Timeout(m.cfg.NavigationTimeout()).WaitLoad()

	meta := Window{
		ID:        uuid.NewString(),
		TargetID:  string(page.TargetID),
		URL:       rawURL,
		Incognito: incognito,
		CreatedAt: time.Now(),
	}
	rec := &windowRecord{meta: meta, page: page}
	if incognito {
		rec.meta.StoreID = string(target.BrowserContextID)
		rec.context = target
	}

	m.mu.Lock()
	m.windows[meta.ID] = rec
	m.mu.Unlock()

	log.Printf("[browser] opened window %s (incognito=%v)", meta.ID, incognito)
	m.emit(ctx, mangle.Fact{
		Predicate: "window_opened",
		Args:      []interface{}{meta.ID, rec.meta.StoreID, incognito},
		Timestamp: meta.CreatedAt,
	})
	return &rec.meta, nil
}

// CloseWindow closes a tracked window and disposes its private context.
func (m *SessionManager) CloseWindow(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[id]
	if !ok {
		return fmt.Errorf("unknown window: %s", id)
	}
	m.closeRecord(rec)
	delete(m.windows, id)
	return nil
}

func (m *SessionManager) closeRecord(rec *windowRecord) {
	if rec.page != nil {
		_ = rec.page.Close()
	}
	if rec.context != nil && m.browser != nil {
		disposeContext(m.browser, rec.context.BrowserContextID)
	}
}

type pageCreator interface {
	Page(opts proto.TargetCreateTarget) (*rod.Page, error)
}

// createPage opens rawURL in a new window of target. On failure, dispose
// (when set) releases the context created for the window.
func createPage(target pageCreator, rawURL string, dispose func()) (*rod.Page, error) {
	page, err := target.Page(proto.TargetCreateTarget{URL: rawURL, NewWindow: true})
	if err != nil {
		if dispose != nil {
			dispose()
		}
		return nil, fmt.Errorf("create page: %w", err)
	}
	return page, nil
}

// disposeContext drops a private browser context and every cookie in it.
func disposeContext(b *rod.Browser, id proto.BrowserBrowserContextID) {
	if id == "" {
		return
	}
	if err := (proto.TargetDisposeBrowserContext{BrowserContextID: id}).Call(b); err != nil {
		log.Printf("[browser] failed to dispose context %s: %v", id, err)
	}
}

// Tabs lists every page open in the browser, including ones this process
// did not open.
func (m *SessionManager) Tabs(ctx context.Context) ([]Tab, error) {
	b, err := m.current()
	if err != nil {
		return nil, err
	}
	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	tabs := make([]Tab, 0, len(pages))
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		tabs = append(tabs, Tab{
			TargetID: string(info.TargetID),
			URL:      info.URL,
			Title:    info.Title,
			StoreID:  string(info.BrowserContextID),
		})
	}
	return tabs, nil
}

// Tab returns the page with the given target id.
func (m *SessionManager) Tab(ctx context.Context, targetID string) (Tab, error) {
	tabs, err := m.Tabs(ctx)
	if err != nil {
		return Tab{}, err
	}
	for _, t := range tabs {
		if t.TargetID == targetID {
			return t, nil
		}
	}
	return Tab{}, fmt.Errorf("unknown tab: %s", targetID)
}

// storageCookies reads every cookie of one browser context. The empty
// storeID is the default context.
func (m *SessionManager) storageCookies(ctx context.Context, storeID string) ([]*proto.NetworkCookie, error) {
	b, err := m.current()
	if err != nil {
		return nil, err
	}
	res, err := proto.StorageGetCookies{BrowserContextID: proto.BrowserBrowserContextID(storeID)}.Call(b.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return res.Cookies, nil
}

func (m *SessionManager) emit(ctx context.Context, f mangle.Fact) {
	if m.engine == nil {
		return
	}
	if err := m.engine.AddFacts(ctx, []mangle.Fact{f}); err != nil {
		log.Printf("[browser] failed to record %s: %v", f.Predicate, err)
	}
}

// checkWindowURL accepts absolute http(s) URLs only.
func checkWindowURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("invalid url %q: absolute http(s) url required", rawURL)
	}
	return nil
}
