package insights

import "embed"

// EmbeddedAssets contains static assets shipped with the framework:
// tracker.js and site.css
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
