package javachat

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering
// conversation transcripts exported from the terminal client.
//
//go:embed templates/*
var TemplateFS embed.FS
