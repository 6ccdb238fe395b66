// Package scaffold provides the embedded starter files written by
// `insights init` and the default data loaded by `insights seed`.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Templates contains all scaffold template files.
// Files use Go text/template syntax and have a .tmpl suffix.
//
//go:embed all:templates
var Templates embed.FS

const root = "templates"

// Data holds the template variables passed to every scaffold template.
type Data struct {
	SiteName   string
	SiteURL    string
	AdminEmail string
}

// WithDefaults fills empty fields.
func (d Data) WithDefaults() Data {
	if d.SiteName == "" {
		d.SiteName = "Insights"
	}
	if d.SiteURL == "" {
		d.SiteURL = "http://localhost:3000"
	}
	if d.AdminEmail == "" {
		d.AdminEmail = "admin@example.com"
	}
	return d
}

// Render executes the named template (without the .tmpl suffix).
func Render(name string, data Data) ([]byte, error) {
	content, err := Templates.ReadFile(root + "/" + name + ".tmpl")
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data.WithDefaults()); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Write renders every template into dir and returns the created paths.
// Existing files are never overwritten.
func Write(dir string, data Data) ([]string, error) {
	var created []string
	err := fs.WalkDir(Templates, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ".tmpl")
		out := filepath.Join(dir, name)
		// Rename dotenv to .env.example.
		if filepath.Base(out) == "dotenv" {
			out = filepath.Join(filepath.Dir(out), ".env.example")
		}
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s already exists", out)
		}
		b, err := Render(name, data)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(out, b, 0o644); err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		created = append(created, out)
		return nil
	})
	return created, err
}
