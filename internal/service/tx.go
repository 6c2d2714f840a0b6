package service

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/flicky/go-marketplace-backoffice/internal/repository"
)

// withTx runs fn in one transaction: commit when fn succeeds, rollback otherwise.
func withTx(ctx context.Context, tr repository.Transactor, fn func(tx pgx.Tx) error) error {
	tx, err := tr.BeginTx(ctx)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit tx", err)
	}
	return nil
}
