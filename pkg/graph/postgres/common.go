package postgres

import (
	"encoding/json"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
)

// toPGVector adapts a possibly-nil embedding to the value pgx should bind
// for a nullable vector column: nil stays nil, everything else is wrapped
// in a pgvector.Vector.
func toPGVector(embedding []float32) any {
	if embedding == nil {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}

// nullableTime adapts a possibly-zero time.Time to a nullable timestamp
// bind value: the zero value maps to SQL NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// unmarshalInto decodes raw jsonb bytes into dst, leaving dst as a non-nil
// empty map when raw is empty or the column held SQL NULL.
func unmarshalInto(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		*dst = map[string]any{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	if *dst == nil {
		*dst = map[string]any{}
	}
	return nil
}

func unmarshalOverlays(raw []byte, dst *map[string]float64) error {
	if len(raw) == 0 {
		*dst = map[string]float64{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	if *dst == nil {
		*dst = map[string]float64{}
	}
	return nil
}
