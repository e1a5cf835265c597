package warehouse

import (
	"context"
	"fmt"

	"github.com/wonny/bankstar/internal/contracts"
)

func upsertFact(ctx context.Context, q querier, fact contracts.FactRow) error {
	query, args, err := buildFactUpsert(fact)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", fact.Table, err)
	}
	return nil
}
