package market

import (
	"context"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/guildecon/economy-api/internal/types"
)

// Transactor runs a function inside a multi-document transaction when the
// store supports one. Implementations return types.ErrTransactionsUnsupported
// when the deployment cannot provide transactions; the market service
// treats that as a routing signal, not a failure, and falls back to the
// compensating-step path.
type Transactor interface {
	RunInTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GormTransactor probes the underlying database once and then either runs
// real transactions or reports them unsupported for the process lifetime.
type GormTransactor struct {
	db        *gorm.DB
	probe     sync.Once
	supported bool
}

// NewTransactor creates a transactor over a gorm handle.
func NewTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

// RunInTransaction implements Transactor.
func (t *GormTransactor) RunInTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	t.probe.Do(func() {
		err := t.db.WithContext(ctx).Transaction(func(*gorm.DB) error { return nil })
		t.supported = err == nil || !transactionsUnsupported(err)
	})
	if !t.supported {
		return types.ErrTransactionsUnsupported
	}

	err := t.db.WithContext(ctx).Transaction(fn)
	if err != nil && transactionsUnsupported(err) {
		return types.ErrTransactionsUnsupported
	}
	return err
}

// transactionsUnsupported matches the specific error class drivers emit
// when the deployment cannot open a transaction, as opposed to a generic
// storage failure inside one.
func transactionsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if err == gorm.ErrInvalidTransaction {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "transactions are not supported") ||
		strings.Contains(msg, "transaction numbers are only allowed")
}

// NoTransactor always reports transactions unsupported, forcing the
// compensating-step path. Used for deployments that disable transactions
// and for exercising the fallback in tests.
type NoTransactor struct{}

// RunInTransaction implements Transactor.
func (NoTransactor) RunInTransaction(context.Context, func(tx *gorm.DB) error) error {
	return types.ErrTransactionsUnsupported
}
