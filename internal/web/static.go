package web

import (
	"embed"
)

// static holds the embedded remote control page.
//
//go:embed static/*
var staticFiles embed.FS
