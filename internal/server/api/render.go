package api

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateRenderer renders the embedded HTML pages for echo.
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer parses every embedded page template.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
}

// Render implements echo.Renderer.
func (r *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}
