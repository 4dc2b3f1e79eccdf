// Package render renders app templates (the inputs document and the workflow
// definition) with a samples record as context.
package render

import (
	"fmt"
	"path/filepath"

	"github.com/flosch/pongo2/v6"
)

func init() {
	// Rendered output is JSON and WDL, never HTML.
	pongo2.SetAutoescape(false)
}

// Renderer renders Jinja2-style templates. Undefined variables render empty.
type Renderer struct{}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render loads templateName from templateDir and executes it with ctx.
func (r *Renderer) Render(templateDir, templateName string, ctx map[string]string) (string, error) {
	loader, err := pongo2.NewLocalFileSystemLoader(templateDir)
	if err != nil {
		return "", fmt.Errorf("template dir %s: %w", templateDir, err)
	}
	set := pongo2.NewSet(filepath.Base(templateDir), loader)
	tpl, err := set.FromFile(templateName)
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", templateName, err)
	}
	return execute(tpl, ctx)
}

// RenderString renders an in-memory template.
func (r *Renderer) RenderString(text string, ctx map[string]string) (string, error) {
	tpl, err := pongo2.FromString(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	return execute(tpl, ctx)
}

func execute(tpl *pongo2.Template, ctx map[string]string) (string, error) {
	pctx := make(pongo2.Context, len(ctx))
	for k, v := range ctx {
		pctx[k] = v
	}
	out, err := tpl.Execute(pctx)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return out, nil
}
