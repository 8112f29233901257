package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"finease/internal/core"
	"finease/internal/guard"
	"finease/internal/log"
	"finease/internal/prefs"
	"finease/internal/session"
)

const (
	layoutFile   = "templates/layout.html"
	partialsFile = "templates/partials.html"
)

// DefaultPhotoURL is shown for users without a profile photo.
const DefaultPhotoURL = "https://cdn-icons-png.flaticon.com/512/847/847969.png"

// pageSet holds one template set per page. Each set contains the layout,
// the shared partials and the page's own "content" block.
type pageSet struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"money": formatAmount,
	"dec":   formatMoney,
	"title": titleCase,
	"photo": photoOrDefault,
	"add":   func(a, b int) int { return a + b },
	"sub":   func(a, b int) int { return a - b },
}

func parsePages(fsys fs.FS) (*pageSet, error) {
	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob templates: %w", err)
	}
	set := &pageSet{pages: make(map[string]*template.Template)}
	for _, f := range files {
		if f == layoutFile || f == partialsFile {
			continue
		}
		t, err := template.New(path.Base(f)).Funcs(templateFuncs).ParseFS(fsys, layoutFile, partialsFile, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		set.pages[path.Base(f)] = t
	}
	if len(set.pages) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	return set, nil
}

// pageData is what every full page renders.
type pageData struct {
	Title   string
	Path    string
	Theme   prefs.Theme
	Session session.State
	IsAdmin bool
	Flash   *Notification
	Content any
}

func (s *Server) newPage(r *http.Request, title string, content any) pageData {
	st := s.session.State()
	return pageData{
		Title:   title,
		Path:    r.URL.Path,
		Theme:   s.prefs.Theme(r.Context()),
		Session: st,
		IsAdmin: st.SignedIn() && !st.RoleLoading && isAdminRole(st.Role),
		Flash:   s.takeFlash(),
		Content: content,
	}
}

func isAdminRole(role core.Role) bool {
	for _, r := range guard.AdminRoles {
		if r == role {
			return true
		}
	}
	return false
}

// render executes the layout of page. Output is buffered so a failing
// template never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	s.execute(w, r, status, page, "layout", data)
}

// renderPartial executes a named block from page's template set, for htmx swaps.
func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, page, block string, data any) {
	s.execute(w, r, http.StatusOK, page, block, data)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, status int, page, name string, data any) {
	logger := log.FromContext(r.Context())
	if s.pages == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldComponent, log.ComponentTemplate, log.FieldErrorType, log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	t, ok := s.pages.pages[page]
	if !ok {
		logger.ErrorContext(r.Context(), "Unknown template", log.FieldTemplate, page)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed",
			log.FieldTemplate, page, "block", name, log.FieldOperation, log.OpRender, log.FieldError, err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func photoOrDefault(u string) string {
	if strings.TrimSpace(u) == "" {
		return DefaultPhotoURL
	}
	return u
}
