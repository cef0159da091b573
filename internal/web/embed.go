// Package web serves the server-rendered review page and its embedded assets.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/labstack/echo/v4"

	"github.com/rosy-tax/reviewer/internal/api"
)

//go:embed templates/*.html static/*
var assets embed.FS

// Renderer renders the embedded html/template set for echo.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"downloadURL": api.DownloadURL,
	}).ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Render implements echo.Renderer.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// StaticFS returns the embedded static directory.
func StaticFS() (fs.FS, error) {
	return fs.Sub(assets, "static")
}

// RegisterStaticRoutes serves the embedded assets under /static.
func RegisterStaticRoutes(e *echo.Echo) error {
	staticFS, err := StaticFS()
	if err != nil {
		return err
	}
	e.StaticFS("/static", staticFS)
	return nil
}
