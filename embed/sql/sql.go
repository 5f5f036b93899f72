package sql

import _ "embed"

// Schema creates the task and dependency tables. It is idempotent.
//
//go:embed schema.sql
var Schema string
