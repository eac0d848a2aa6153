// Package web holds the embedded HTML templates, static assets and the
// renderer shared by the personal and enterprise areas.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"path"
	"time"

	"moneta/internal/logs"
	"moneta/internal/session"
)

//go:embed templates/*.tmpl templates/enterprise/*.tmpl
var tplFS embed.FS

//go:embed static/*
var staticFS embed.FS

// one template set per page: layout + that page
type pageTemplates map[string]*template.Template

// asTime accepts both time.Time and *time.Time fields.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	}
	return time.Time{}, false
}

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"date": func(v any) string {
		t, ok := asTime(v)
		if !ok {
			return "-"
		}
		return t.Format("02 Jan 2006")
	},
	"dateInput": func(v any) string {
		t, ok := asTime(v)
		if !ok {
			return ""
		}
		return t.Format("2006-01-02")
	},
}

func parseTemplates() pageTemplates {
	all, err := fs.Glob(tplFS, "templates/*.tmpl")
	if err != nil {
		log.Fatalf("web: glob templates failed: %v", err)
	}
	ent, err := fs.Glob(tplFS, "templates/enterprise/*.tmpl")
	if err != nil {
		log.Fatalf("web: glob enterprise templates failed: %v", err)
	}
	all = append(all, ent...)
	if len(all) == 0 {
		log.Fatalf("web: no templates found in embed FS")
	}

	out := make(pageTemplates)
	for _, f := range all {
		if path.Base(f) == "layout.tmpl" {
			continue
		}
		t := template.New("layout").Funcs(funcs)
		if _, err := t.ParseFS(tplFS, "templates/layout.tmpl"); err != nil {
			log.Fatalf("web: parse layout.tmpl: %v", err)
		}
		if _, err := t.ParseFS(tplFS, f); err != nil {
			log.Fatalf("web: parse %s: %v", f, err)
		}
		// key keeps the subdir, e.g. "enterprise/dashboard.tmpl"
		key := f[len("templates/"):]
		out[key] = t
	}
	return out
}

// Renderer executes layout+page sets and folds session state (flashes,
// identity, active business) into every page's data.
type Renderer struct {
	t pageTemplates
}

func NewRenderer() *Renderer { return &Renderer{t: parseTemplates()} }

func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, page string, data map[string]any) {
	t, ok := rd.t[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	if s := session.FromContext(r.Context()); s != nil {
		data["Flashes"] = s.TakeFlashes()
		data["LoggedIn"] = s.Rec.Authenticated()
		data["SessionEmail"] = s.Rec.Email
		data["ActiveBusiness"] = s.Rec.ActiveBusiness
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		logs.Logger.Errorf("render %s: %v", page, err)
	}
}

// Static serves the embedded assets under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("web: static FS: %v", err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
