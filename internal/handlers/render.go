package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/s/lifelessons/internal/models"
)

// Renderer holds one template set per page, each combining the shared
// layout and partials with the page body.
type Renderer struct {
	pages map[string]*template.Template
}

var funcMap = template.FuncMap{
	"add": func(i, j int) int { return i + j },
	"sub": func(i, j int) int { return i - j },
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "Never"
		}
		return t.Format("Jan 2, 2006 at 15:04")
	},
	"views": func(v *int) string {
		if v == nil {
			return "Not tracked"
		}
		return strconv.Itoa(*v)
	},
	"excerpt": func(s string, n int) string {
		if utf8.RuneCountInString(s) <= n {
			return s
		}
		return string([]rune(s)[:n]) + "…"
	},
	"percent": func(n, max int) int {
		if max <= 0 {
			return 0
		}
		return n * 100 / max
	},
	"money": func(p *models.Payment) string {
		if p == nil {
			return ""
		}
		return fmt.Sprintf("%.2f %s", p.Major(), strings.ToUpper(p.Currency))
	},
	"is": func(a any, b string) bool { return fmt.Sprint(a) == b },
	"initial": func(name string) string {
		r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
		if r == utf8.RuneError {
			return "?"
		}
		return strings.ToUpper(string(r))
	},
}

// NewRenderer parses layout.html and partials.html together with every
// file under pages/. Pages are addressed by file name without extension.
func NewRenderer(files fs.FS) (*Renderer, error) {
	pages, err := fs.Glob(files, "pages/*.html")
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	t := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, p := range pages {
		tmpl, err := template.New("").Funcs(funcMap).ParseFS(files, "layout.html", "partials.html", p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		t.pages[strings.TrimSuffix(path.Base(p), ".html")] = tmpl
	}
	return t, nil
}

// Render executes the page into a buffer first so a template error never
// leaves a half written response.
func (t *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	tmpl, ok := t.pages[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
