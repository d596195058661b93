// Package site renders the small HTML fragments a wiki front end embeds
// for analytics tagging and link handling.
package site

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const gtagBase = "https://www.googletagmanager.com/gtag/js?id="

// Options configures a Customizer.
type Options struct {
	TrackingID            string
	WriteCustomDimensions bool
	CustomMap             map[string]string
	// CanonicalServer is the wiki's own server, e.g. "https://example.org".
	CanonicalServer string
	Terms           Link
	Support         Link
}

// Link is a plain footer link.
type Link struct {
	URL  string
	Text string
}

// Page identifies the page being rendered.
type Page struct {
	ID int
	// Title is the prefixed title key, e.g. "Help:Contents".
	Title   string
	Special bool
}

// Customizer produces head items and rewrites links for one site.
type Customizer struct {
	opts Options
	host string
}

// New creates a Customizer.
func New(opts Options) *Customizer {
	return &Customizer{opts: opts, host: serverHost(opts.CanonicalServer)}
}

// serverHost extracts the host of a canonical server value, which may be
// protocol relative ("//example.org").
func serverHost(server string) string {
	if server == "" {
		return ""
	}
	if !strings.Contains(server, "//") {
		server = "//" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// IsLocal reports whether rawURL points at the canonical server.
func (c *Customizer) IsLocal(rawURL string) bool {
	if c.host == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.ToLower(u.Hostname()) == c.host
}

// HeadItems returns the Google tag snippet for page, or "" when no
// tracking id is configured.
func (c *Customizer) HeadItems(page Page) (string, error) {
	id := c.opts.TrackingID
	if id == "" {
		return "", nil
	}

	quotedID, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	js := "window.dataLayer=window.dataLayer||[];" +
		"function gtag(){dataLayer.push(arguments);}" +
		"gtag('js',new Date());"

	if c.opts.WriteCustomDimensions {
		pageID := page.ID
		if page.Special {
			pageID = 0
		}
		params, err := json.Marshal(map[string]any{
			"custom_map":    c.opts.CustomMap,
			"mw:page_id":    pageID,
			"mw:page_title": page.Title,
		})
		if err != nil {
			return "", err
		}
		js += "gtag('config'," + string(quotedID) + "," + string(params) + ");"
	} else {
		js += "gtag('config'," + string(quotedID) + ");"
	}

	loader := element(atom.Script, html.Attribute{Key: "async"}, html.Attribute{Key: "src", Val: gtagBase + url.QueryEscape(id)})
	inline := element(atom.Script)
	inline.AppendChild(&html.Node{Type: html.TextNode, Data: js})

	return render(
		&html.Node{Type: html.CommentNode, Data: " Global site tag (gtag.js) - Google Analytics "},
		&html.Node{Type: html.TextNode, Data: "\n"},
		loader,
		inline,
	)
}

// ExternalLink renders a link to the canonical server as an internal link:
// the "external" class and any target are dropped. text is an HTML
// fragment. ok is false for links to other hosts, which are left to the
// caller.
func (c *Customizer) ExternalLink(rawURL, text string, attrs map[string]string) (link string, ok bool, err error) {
	if !c.IsLocal(rawURL) {
		return "", false, nil
	}

	a := element(atom.A)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if k == "target" || k == "href" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := attrs[k]
		if k == "class" {
			v = strings.Join(removeWord(strings.Fields(v), "external"), " ")
		}
		a.Attr = append(a.Attr, html.Attribute{Key: k, Val: v})
	}
	a.Attr = append(a.Attr, html.Attribute{Key: "href", Val: rawURL})

	children, err := html.ParseFragment(strings.NewReader(text), element(atom.A))
	if err != nil {
		return "", false, err
	}
	for _, n := range children {
		a.AppendChild(n)
	}

	link, err = render(a)
	return link, err == nil, err
}

func removeWord(words []string, w string) []string {
	out := words[:0]
	for _, x := range words {
		if x != w {
			out = append(out, x)
		}
	}
	return out
}

// SidebarItem is one entry of a sidebar section.
type SidebarItem struct {
	Text   string `json:"text"`
	Href   string `json:"href,omitempty"`
	ID     string `json:"id,omitempty"`
	Rel    string `json:"rel,omitempty"`
	Target string `json:"target,omitempty"`
}

// Sidebar maps section headings to their items.
type Sidebar map[string][]SidebarItem

// ConvertSidebarLinks strips rel and target from items that link to the
// canonical server, in place.
func (c *Customizer) ConvertSidebarLinks(bar Sidebar) {
	for _, items := range bar {
		for i := range items {
			if items[i].Href == "" || !c.IsLocal(items[i].Href) {
				continue
			}
			items[i].Rel = ""
			items[i].Target = ""
		}
	}
}

// RedlinkQuery sets the query of a link to a page that does not exist, so
// following it shows the page instead of opening the editor.
func RedlinkQuery(known bool, q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if !known {
		q.Set("action", "view")
		q.Set("redlink", "1")
	}
	return q
}

// FooterItem is a rendered footer link.
type FooterItem struct {
	Key  string `json:"key"`
	HTML string `json:"html"`
}

// FooterPlaces is the footer section that carries the site links.
const FooterPlaces = "places"

// FooterLinks prepends the terms link and appends the support link to the
// places section. Other sections are returned unchanged.
func (c *Customizer) FooterLinks(key string, items []FooterItem) ([]FooterItem, error) {
	if key != FooterPlaces {
		return items, nil
	}

	out := make([]FooterItem, 0, len(items)+2)
	if c.opts.Terms.URL != "" {
		h, err := footerLink(c.opts.Terms)
		if err != nil {
			return nil, err
		}
		out = append(out, FooterItem{Key: "terms", HTML: h})
	}
	out = append(out, items...)
	if c.opts.Support.URL != "" {
		h, err := footerLink(c.opts.Support)
		if err != nil {
			return nil, err
		}
		out = append(out, FooterItem{Key: "support", HTML: h})
	}
	return out, nil
}

func footerLink(l Link) (string, error) {
	a := element(atom.A, html.Attribute{Key: "href", Val: l.URL})
	text := l.Text
	if text == "" {
		text = l.URL
	}
	a.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return render(a)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func render(nodes ...*html.Node) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}
