package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRenderSeed(t *testing.T) {
	b, err := Render("seed.yaml", Data{SiteName: "My Blog", AdminEmail: "me@example.com"})
	require.NoError(t, err)

	var doc struct {
		Categories []map[string]string `yaml:"categories"`
		Posts      []struct {
			Slug   string `yaml:"slug"`
			Author string `yaml:"author"`
			Title  string `yaml:"title"`
		} `yaml:"posts"`
	}
	require.NoError(t, yaml.Unmarshal(b, &doc))
	assert.NotEmpty(t, doc.Categories)
	require.NotEmpty(t, doc.Posts)
	assert.Equal(t, "me@example.com", doc.Posts[0].Author)
	assert.Equal(t, "Welcome to My Blog", doc.Posts[0].Title)
}

func TestRenderUnknown(t *testing.T) {
	_, err := Render("nope.yaml", Data{})
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	created, err := Write(dir, Data{SiteName: "My Blog"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, ".env.example"),
		filepath.Join(dir, "seed.yaml"),
	}, created)

	cfg, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), `name: "My Blog"`)
	assert.Contains(t, string(cfg), `url: "http://localhost:3000"`)

	_, err = Write(dir, Data{})
	assert.Error(t, err, "existing files are never overwritten")
}
