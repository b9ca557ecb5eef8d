// Package appfs embeds the static files the binaries need at runtime:
// SQL migrations, email templates and the common passwords list.
package appfs

import "embed"

//go:embed assets migrations templates templates/email/_*
var FS embed.FS
