// Package userlist reads the classic Setup user list and turns its Login
// actions into impersonation links.
package userlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quickloginas-mcp-server/internal/frontdoor"
	"quickloginas-mcp-server/internal/salesforce"
)

// UsersPath is the classic user list page.
const UsersPath = "/005"

// DefaultPageSize matches the largest page the classic list renders.
const DefaultPageSize = 1000

// ErrNoUserTable means the fetched page did not contain the user list,
// usually because the session lacks access to Setup.
var ErrNoUserTable = errors.New("could not find the user table on the page")

// PageFetcher fetches a classic UI page with the session cookie.
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, query url.Values) (string, error)
}

// User is one data row of the list.
type User struct {
	Name  string   `json:"name"`
	Cells []string `json:"cells"`
	// LoginURL is the frontdoor impersonation URL, empty when the row has no Login action.
	LoginURL string `json:"loginUrl,omitempty"`
	// DetailURL is the absolute link to the user record.
	DetailURL string `json:"detailUrl,omitempty"`
}

// CanLogin reports whether the row carries a Login action.
func (u User) CanLogin() bool { return u.LoginURL != "" }

// ListView is an entry of the list-view selector.
type ListView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Selected bool   `json:"selected,omitempty"`
}

// Page is one parsed page of the user list.
type Page struct {
	Headers   []string   `json:"headers"`
	Users     []User     `json:"users"`
	Views     []ListView `json:"views,omitempty"`
	Start     int        `json:"start"`
	PageSize  int        `json:"pageSize"`
	HasNext   bool       `json:"hasNext"`
	HasPrev   bool       `json:"hasPrev"`
	Loginable int        `json:"loginable"`
}

// NextStart and PrevStart are the row offsets of the neighbouring pages.
func (p *Page) NextStart() int { return p.Start + p.PageSize }

func (p *Page) PrevStart() int {
	if p.Start < p.PageSize {
		return 0
	}
	return p.Start - p.PageSize
}

// Request selects the page to fetch.
type Request struct {
	ViewID   string
	Start    int
	PageSize int
	// ReturnURL is where the impersonated session lands after login.
	ReturnURL string
}

// PageQuery builds the list page query parameters.
func PageQuery(viewID string, start, pageSize int) url.Values {
	q := url.Values{}
	q.Set("isUserEntityOverride", "1")
	if viewID != "" {
		q.Set("fcf", viewID)
	}
	q.Set("rowsperpage", strconv.Itoa(pageSize))
	q.Set("lsr", strconv.Itoa(start))
	return q
}

// Fetch loads and parses one page of the user list for session.
func Fetch(ctx context.Context, pages PageFetcher, session *salesforce.Session, req Request) (*Page, error) {
	if req.PageSize <= 0 {
		req.PageSize = DefaultPageSize
	}
	if req.Start < 0 {
		req.Start = 0
	}
	html, err := pages.FetchPage(ctx, UsersPath, PageQuery(req.ViewID, req.Start, req.PageSize))
	if err != nil {
		return nil, fmt.Errorf("fetch user list: %w", err)
	}
	page, err := Parse(html, session.Origin(), session.Credential, req.ReturnURL)
	if err != nil {
		return nil, err
	}
	page.Start = req.Start
	page.PageSize = req.PageSize
	log.Printf("[userlist] %s: %d users, %d with login (start %d)", session.IssuingHost, len(page.Users), page.Loginable, req.Start)
	return page, nil
}

// Parse extracts the user table, list views and paging links from a
// classic user list page.
func Parse(html, origin, credential, returnURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse user list: %w", err)
	}
	table := doc.Find("div.setupBlock table.list").First()
	if table.Length() == 0 {
		return nil, ErrNoUserTable
	}

	page := &Page{Users: []User{}}
	table.Find("tr.headerRow").First().Children().Each(func(_ int, s *goquery.Selection) {
		page.Headers = append(page.Headers, cellText(s))
	})

	var buildErr error
	table.Find("tr.dataRow").Each(func(_ int, row *goquery.Selection) {
		u := User{}
		row.Children().Each(func(_ int, cell *goquery.Selection) {
			u.Cells = append(u.Cells, cellText(cell))
		})
		u.Name = cellText(row.Find("th").First())

		row.Find("td.actionColumn a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if !strings.Contains(a.Text(), "Login") {
				return true
			}
			href, _ := a.Attr("href")
			loginAs := frontdoor.LoginAsURL(origin, href, returnURL)
			loginURL, err := frontdoor.BuildImpersonationURL(loginAs, credential, origin)
			if err != nil {
				buildErr = err
				return false
			}
			u.LoginURL = loginURL
			return false
		})

		if href, ok := row.Find("th a").First().Attr("href"); ok {
			u.DetailURL = absolute(origin, href)
		}
		if u.Name == "" {
			u.Name = firstDataCell(row)
		}
		if u.CanLogin() {
			page.Loginable++
		}
		page.Users = append(page.Users, u)
	})
	if buildErr != nil {
		return nil, buildErr
	}

	doc.Find("select#fcf option").Each(func(_ int, opt *goquery.Selection) {
		id, _ := opt.Attr("value")
		_, selected := opt.Attr("selected")
		page.Views = append(page.Views, ListView{ID: id, Label: cellText(opt), Selected: selected})
	})

	doc.Find(".listElementBottomNav div.next a").Each(func(_ int, a *goquery.Selection) {
		text := strings.ToLower(a.Text())
		switch {
		case strings.Contains(text, "next"):
			page.HasNext = true
		case strings.Contains(text, "prev"):
			page.HasPrev = true
		}
	})
	return page, nil
}

// Filter keeps users whose row text contains term (case-insensitive) and,
// when loginOnly is set, that carry a Login action.
func Filter(users []User, term string, loginOnly bool) []User {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]User, 0, len(users))
	for _, u := range users {
		if loginOnly && !u.CanLogin() {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(strings.Join(u.Cells, " ")), term) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func firstDataCell(row *goquery.Selection) string {
	var name string
	row.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if td.HasClass("actionColumn") {
			return true
		}
		name = cellText(td)
		return false
	})
	return name
}

func absolute(origin, href string) string {
	if strings.HasPrefix(href, "/") {
		return strings.TrimRight(origin, "/") + href
	}
	return href
}
