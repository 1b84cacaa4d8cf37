package repo

import (
	"context"
	"testing"

	"github.com/placaexpress/vehicle-report-backend/pkg/db/dbtest"
	"gorm.io/gorm"
)

type ctxKey struct{}

func TestBaseDBBindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}

	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
	if base.Raw() != db {
		t.Fatalf("Raw should expose the base connection")
	}
}

func TestBaseConnPrefersTransaction(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		conn := base.Conn(ctx, tx)
		if conn.Statement.ConnPool != tx.Statement.ConnPool {
			t.Fatalf("expected transaction connection")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if base.Conn(ctx, nil).Statement.ConnPool != db.Statement.ConnPool {
		t.Fatalf("expected base connection without tx")
	}
}
