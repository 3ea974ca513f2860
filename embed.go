package chatwidget

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the chat widget. Pages and
// message partials live in separate directories so the renderer can parse partials on their own.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded static assets, the widget script and its stylesheet.
//
//go:embed static/*
var StaticFS embed.FS
