package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
)

// Aggregates are the denormalized counters kept on a KB row.
type Aggregates struct {
	DocCount       int
	TotalSizeBytes int64
}

// SumSizes folds the sizes of live documents into KB aggregates.
func SumSizes(sizes []int64) Aggregates {
	agg := Aggregates{DocCount: len(sizes)}
	for _, s := range sizes {
		agg.TotalSizeBytes += s
	}
	return agg
}

// lockKnowledgeBase serializes aggregate writers of one KB on its row lock.
func lockKnowledgeBase(ctx context.Context, q querier, kbID int64) error {
	sql, args, err := psql.Select("id").
		From("knowledge_bases").
		Where(squirrel.Eq{"id": kbID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return err
	}

	var id int64
	if err := q.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return notFound(err)
	}
	return nil
}

// recomputeAggregates rewrites doc_count and total_size_bytes from the live
// documents of kbID. Callers hold the KB row lock.
func recomputeAggregates(ctx context.Context, q querier, kbID int64) error {
	sql, args, err := psql.Select("size_bytes").
		From("knowledge_documents").
		Where(squirrel.Eq{"kb_id": kbID}).
		Where(squirrel.Eq{"deleted_at": nil}).
		ToSql()
	if err != nil {
		return err
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to read document sizes: %w", err)
	}
	var sizes []int64
	for rows.Next() {
		var size int64
		if err := rows.Scan(&size); err != nil {
			rows.Close()
			return err
		}
		sizes = append(sizes, size)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	agg := SumSizes(sizes)
	if _, err := exec(ctx, q, psql.Update("knowledge_bases").
		Set("doc_count", agg.DocCount).
		Set("total_size_bytes", agg.TotalSizeBytes).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": kbID})); err != nil {
		return fmt.Errorf("failed to update aggregates: %w", err)
	}
	return nil
}
