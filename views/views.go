// Package views holds the portal templates. They are embedded in the
// binary and rendered by the django engine.
package views

import (
	"embed"
	"io/fs"
	"net/http"
	"os"

	"github.com/gofiber/template/django/v3"
)

//go:embed all:templates
var embedded embed.FS

// Extension of every template file.
const Extension = ".html"

// FS returns the embedded templates rooted at the templates directory.
func FS() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic("views: templates directory missing: " + err.Error())
	}
	return sub
}

type Options struct {
	// Dir serves templates from disk instead of the embedded copy, for
	// editing templates without rebuilding.
	Dir    string
	Reload bool
	Debug  bool
	Funcs  map[string]any
}

// New builds the view engine.
func New(opts Options) *django.Engine {
	var templates fs.FS = FS()
	if opts.Dir != "" {
		templates = os.DirFS(opts.Dir)
	}

	// Template names, extends and includes all resolve from the root of
	// templates, e.g. "complaints/_votes.html".
	engine := django.NewFileSystem(http.FS(templates), Extension)
	engine.Reload(opts.Reload)
	engine.Debug(opts.Debug)
	if len(opts.Funcs) > 0 {
		engine.AddFuncMap(opts.Funcs)
	}
	return engine
}
