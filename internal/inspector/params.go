package inspector

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultLaunchPath is where the inspector view is served.
const DefaultLaunchPath = "/inspector"

var (
	sobjectPattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	recordIDPattern  = regexp.MustCompile(`^[A-Za-z0-9]{15,18}$`)
	durableIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
	recordPagePath   = regexp.MustCompile(`/lightning/r/([A-Za-z0-9_]+)/([A-Za-z0-9]{15,18})/view`)
)

// Params are the inspector launch parameters carried in the view URL.
type Params struct {
	RecordID string `json:"id"`
	SObject  string `json:"sobject"`
	SFHost   string `json:"sfHost"`
	// StoreID selects the cookie partition the session is read from.
	StoreID string `json:"storeId,omitempty"`
}

// Validate rejects missing or malformed launch parameters. The object name
// and record id end up in SOQL and REST paths, so both are strictly checked.
func (p Params) Validate() error {
	if p.RecordID == "" || p.SObject == "" || p.SFHost == "" {
		return fmt.Errorf("%w: record id, sobject and sfHost are required", ErrInvalidParams)
	}
	if !sobjectPattern.MatchString(p.SObject) {
		return fmt.Errorf("%w: sobject name %q", ErrInvalidParams, p.SObject)
	}
	if !recordIDPattern.MatchString(p.RecordID) {
		return fmt.Errorf("%w: record id %q", ErrInvalidParams, p.RecordID)
	}
	return nil
}

// Title is the "<SObject>: <Id>" caption shown above the grid.
func (p Params) Title() string {
	return p.SObject + ": " + p.RecordID
}

// Origin returns the https origin for SFHost, which may be a bare host or a full URL.
func (p Params) Origin() string {
	if strings.HasPrefix(p.SFHost, "http://") || strings.HasPrefix(p.SFHost, "https://") {
		if u, err := url.Parse(p.SFHost); err == nil && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return "https://" + strings.TrimRight(p.SFHost, "/")
}

// LaunchURL builds the inspector URL for p under base (e.g. /inspector).
func LaunchURL(base string, p Params) string {
	if base == "" {
		base = DefaultLaunchPath
	}
	q := url.Values{}
	q.Set("id", p.RecordID)
	q.Set("sobject", p.SObject)
	q.Set("sfHost", p.SFHost)
	if p.StoreID != "" {
		q.Set("store", p.StoreID)
	}
	return base + "?" + q.Encode()
}

// ParamsFromQuery reads launch parameters from URL query values.
func ParamsFromQuery(q url.Values) Params {
	return Params{
		RecordID: q.Get("id"),
		SObject:  q.Get("sobject"),
		SFHost:   q.Get("sfHost"),
		StoreID:  q.Get("store"),
	}
}

// ParseLaunchURL reads launch parameters from an inspector link.
func ParseLaunchURL(link string) (Params, error) {
	u, err := url.Parse(link)
	if err != nil {
		return Params{}, fmt.Errorf("parse inspector link: %w", err)
	}
	p := ParamsFromQuery(u.Query())
	return p, p.Validate()
}

// ParamsFromRecordPage derives launch parameters from a Lightning record page
// URL such as https://acme.lightning.force.com/lightning/r/Account/001.../view.
func ParamsFromRecordPage(pageURL string) (Params, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return Params{}, fmt.Errorf("parse record page url: %w", err)
	}
	m := recordPagePath.FindStringSubmatch(u.Path)
	if m == nil {
		return Params{}, fmt.Errorf("not a record page: %s", pageURL)
	}
	return Params{SObject: m[1], RecordID: m[2], SFHost: pageURL}, nil
}
