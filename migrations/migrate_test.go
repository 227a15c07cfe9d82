package migrations_test

import (
	"context"
	"testing"

	"github.com/lmoreno/stockblock/internal/testutil"
	"github.com/lmoreno/stockblock/migrations"
)

func TestApply_RecordsMigrations(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS temporary_blocks, skus, schema_migrations CASCADE`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply: %v", err)
	}

	var applied int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied < 2 {
		t.Fatalf("expected at least 2 recorded migrations, got %d", applied)
	}

	// Re-applying is a no-op.
	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	var again int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&again); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if again != applied {
		t.Fatalf("expected re-apply to record nothing, got %d then %d", applied, again)
	}
}
