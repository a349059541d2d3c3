// Package migrations 把 SQL 迁移文件编译进二进制，MIGRATIONS_DIR 未设置时使用
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
