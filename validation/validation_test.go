package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Title   string         `json:"title" validate:"required,max=10"`
	Slug    string         `json:"slug" validate:"required,slug"`
	Link    NullableString `json:"link" validate:"omitempty,url"`
	Tags    []string       `json:"tags" validate:"required,min=1,dive,slug"`
	Kind    string         `json:"kind" validate:"required,oneof=GITHUB TOOL"`
	Seconds *int           `json:"seconds" validate:"omitempty,min=0"`
}

func TestStructValid(t *testing.T) {
	zero := 0
	p := samplePayload{
		Title:   "Hello",
		Slug:    "hello-world",
		Link:    NewNullableString("https://example.com/a.png"),
		Tags:    []string{"ai-tools"},
		Kind:    "TOOL",
		Seconds: &zero,
	}
	require.NoError(t, Struct(p))
}

func TestStructReportsEveryField(t *testing.T) {
	neg := -1
	p := samplePayload{
		Title:   "a title that is far too long",
		Slug:    "Not A Slug",
		Link:    NewNullableString("not a url"),
		Tags:    []string{"ok", "Bad Tag"},
		Kind:    "BLOG",
		Seconds: &neg,
	}
	err := Struct(p)
	require.Error(t, err)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"title", "slug", "link", "tags[1]", "kind", "seconds"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.NotContains(t, verr.Fields, "tags[0]")
	assert.Equal(t, "must be one of: GITHUB, TOOL", verr.Fields["kind"])
}

func TestStructEmptySlice(t *testing.T) {
	p := samplePayload{Title: "t", Slug: "s", Kind: "TOOL", Tags: []string{}}
	err := Struct(p)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must contain at least 1 item(s)", verr.Fields["tags"])
}

func TestNullableStringJSON(t *testing.T) {
	tests := []struct {
		body  string
		set   bool
		valid bool
		value string
	}{
		{`{}`, false, false, ""},
		{`{"link":null}`, true, false, ""},
		{`{"link":""}`, true, false, ""},
		{`{"link":"https://x.dev"}`, true, true, "https://x.dev"},
	}
	for _, tt := range tests {
		var p struct {
			Link NullableString `json:"link"`
		}
		require.NoError(t, json.Unmarshal([]byte(tt.body), &p), tt.body)
		assert.Equal(t, tt.set, p.Link.Set, tt.body)
		assert.Equal(t, tt.valid, p.Link.Valid, tt.body)
		assert.Equal(t, tt.value, p.Link.String, tt.body)
	}
}

func TestNullableStringEmptyPassesURL(t *testing.T) {
	p := samplePayload{Title: "t", Slug: "s", Kind: "GITHUB", Tags: []string{"x"}, Link: NullableString{Set: true}}
	require.NoError(t, Struct(p))
}

func TestSlug(t *testing.T) {
	assert.True(t, Slug("hello-2024"))
	assert.False(t, Slug("Hello"))
	assert.False(t, Slug(""))
	assert.False(t, Slug("with space"))
}
