package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pageviewinfo/pkg/site"
)

// SiteHandler exposes the site customization helpers.
type SiteHandler struct {
	c *site.Customizer
}

func NewSiteHandler(c *site.Customizer) *SiteHandler {
	return &SiteHandler{c: c}
}

// HandleHead serves GET /api/site/head?title=T&page_id=N&special=0|1 as an HTML fragment.
func (h *SiteHandler) HandleHead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title := q.Get("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	page := site.Page{Title: title}
	if s := q.Get("page_id"); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil || id < 0 {
			writeError(w, http.StatusBadRequest, "page_id must be a non-negative integer")
			return
		}
		page.ID = id
	}
	if s := q.Get("special"); s != "" {
		special, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "special must be a boolean")
			return
		}
		page.Special = special
	}

	out, err := h.c.HeadItems(page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

type linkResponse struct {
	Local bool   `json:"local"`
	HTML  string `json:"html,omitempty"`
}

// HandleLink serves GET /api/site/link?url=U&text=T&class=C.
func (h *SiteHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u := q.Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	text := q.Get("text")
	if text == "" {
		text = u
	}
	attrs := map[string]string{}
	if c := q.Get("class"); c != "" {
		attrs["class"] = c
	}
	if t := q.Get("target"); t != "" {
		attrs["target"] = t
	}

	link, ok, err := h.c.ExternalLink(u, text, attrs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{Local: ok, HTML: link})
}

// HandleRedlink serves GET /api/site/redlink?known=B plus any link query,
// returning the query the link should carry.
func (h *SiteHandler) HandleRedlink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	known, err := strconv.ParseBool(q.Get("known"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "known must be a boolean")
		return
	}
	q.Del("known")
	writeJSON(w, http.StatusOK, map[string]string{"query": site.RedlinkQuery(known, q).Encode()})
}

// HandleFooter serves GET /api/site/footer?key=K.
func (h *SiteHandler) HandleFooter(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = site.FooterPlaces
	}
	items, err := h.c.FooterLinks(key, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []site.FooterItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleSidebar serves POST /api/site/sidebar, returning the posted
// sidebar with links to the wiki itself converted.
func (h *SiteHandler) HandleSidebar(w http.ResponseWriter, r *http.Request) {
	var bar site.Sidebar
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&bar); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sidebar: "+err.Error())
		return
	}
	h.c.ConvertSidebarLinks(bar)
	writeJSON(w, http.StatusOK, bar)
}
