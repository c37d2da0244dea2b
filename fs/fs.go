// Package appfs bundles the files the binaries need at runtime: migrations, email templates and assets.
package appfs

import "embed"

//go:embed migrations assets assets/templates/email/_base.*
var FS embed.FS

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "assets/templates/email"
	CommonPasswords   = "assets/common-passwords.txt"
)
