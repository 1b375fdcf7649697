// Package scripts embeds the bundled Risor report scripts.
package scripts

import "embed"

// FS holds the report scripts, addressed by file name ("summary.risor").
//
//go:embed *.risor
var FS embed.FS
