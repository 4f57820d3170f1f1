// Package schema embeds the JSON schema for crucible configuration files.
package schema

import "embed"

//go:embed *.schema.json
var FS embed.FS
