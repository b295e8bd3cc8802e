// Package templates embeds the files written by conductor init.
package templates

import "embed"

//go:embed config.yaml tree.yaml graph.yaml request.yaml
var FS embed.FS
