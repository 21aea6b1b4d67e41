package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"github.com/EdwardQuah/CNN-Classification-CIFAR10/report"
)

//go:embed assets
var assets embed.FS

// Static files served under /static/
func staticFiles() http.FileSystem {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

const sessionName = "cifar10"

var funcs = template.FuncMap{
	"percent": func(x float64) string { return fmt.Sprintf("%.2f%%", 100*x) },
	"shape":   report.Shape,
}

// Template and main menu definition
type Templates struct {
	*template.Template
	Title    string
	Heading  template.HTML
	Menu     []Link
	Options  []Link
	Dropdown []Link
	store    sessions.Store
}

type Link struct {
	Url      string
	Name     string
	Selected bool
	Submit   bool
}

// Parse the embedded templates and initialise the main menu. The session store is used to keep
// the selected model between requests.
func NewTemplates(store sessions.Store) (*Templates, error) {
	t := &Templates{store: store}
	var err error
	t.Template, err = template.New("").Funcs(funcs).ParseFS(assets, "assets/*.html")
	if err != nil {
		return nil, err
	}
	t.AddMenuItem(Link{Name: "train", Url: "/train"})
	t.AddMenuItem(Link{Name: "config", Url: "/config"})
	t.AddMenuItem(Link{Name: "model", Url: "/view"})
	t.AddMenuItem(Link{Name: "images", Url: "/images/train/0"})
	return t, nil
}

func (t *Templates) Clone() *Templates {
	return &Templates{
		Template: t.Template,
		Menu:     append([]Link{}, t.Menu...),
		Options:  append([]Link{}, t.Options...),
		store:    t.store,
	}
}

func (t *Templates) Select(url string) *Templates {
	for i, key := range t.Menu {
		t.Menu[i].Selected = strings.HasPrefix(url, key.Url)
	}
	t.Title = strings.TrimPrefix(url, "/")
	return t
}

func (t *Templates) AddMenuItem(l Link) *Templates {
	t.Menu = append(t.Menu, l)
	return t
}

func (t *Templates) AddOption(l Link) *Templates {
	t.Options = append(t.Options, l)
	return t
}

func (t *Templates) SelectOptions(names []string) *Templates {
	for i, key := range t.Options {
		t.Options[i].Selected = false
		for _, name := range names {
			if key.Name == name {
				t.Options[i].Selected = true
			}
		}
	}
	return t
}

// Exec renders the named template with the data
func (t *Templates) Exec(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		logError(w, err)
	}
}

// Model returns the model name from the URL path or request form or else from the session, and saves
// it to the session.
func (t *Templates) Model(w http.ResponseWriter, r *http.Request, def string) string {
	session, err := t.store.Get(r, sessionName)
	if err != nil {
		slog.Debug("new session", "error", err)
	}
	model := mux.Vars(r)["model"]
	if model == "" {
		model = r.FormValue("model")
	}
	if model == "" {
		model, _ = session.Values["model"].(string)
	}
	if model == "" {
		model = def
	}
	session.Values["model"] = model
	if err = session.Save(r, w); err != nil {
		slog.Warn("error saving session", "error", err)
	}
	return model
}

func logError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
}
