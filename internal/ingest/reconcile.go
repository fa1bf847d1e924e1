package ingest

import (
	"iter"

	"chai-assistant/internal/model"
)

// Reconcile keeps the candidates whose id is not in existing, in input order.
func Reconcile(candidates iter.Seq[model.Document], existing map[string]struct{}) []model.Document {
	var out []model.Document
	for doc := range candidates {
		if _, seen := existing[doc.ID]; seen {
			continue
		}
		out = append(out, doc)
	}
	return out
}
