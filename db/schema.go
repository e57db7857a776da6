// Package db embeds the pipeline's Postgres schema so both the store
// package and the `doomctl apply-schema` command can apply it without
// reading from the filesystem at runtime.
package db

import _ "embed"

//go:embed schema.sql
var schemaSQL string

// Schema returns the full DDL for the videos and analyses tables.
func Schema() string {
	return schemaSQL
}
