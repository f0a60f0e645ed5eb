package postgres

import (
	"context"
	_ "embed"

	"github.com/domonda/go-errs"
	"github.com/domonda/go-sqldb/db"
)

//go:embed schema.sql
var schemaDDL string

// CreateSchema creates the worker schema, the worker.task table and its
// claim index if they don't exist yet.
func CreateSchema(ctx context.Context) (err error) {
	defer errs.WrapWithFuncParams(&err, ctx)

	return db.Conn(ctx).Exec(schemaDDL)
}
