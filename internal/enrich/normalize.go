package enrich

import (
	"strings"

	"brickcat/internal"
)

// NormalizedRecord is a CatalogRecord whose lookup keys are never absent.
type NormalizedRecord struct {
	SetKey   string
	PieceKey string
	Fields   internal.Row
}

// Normalize maps absent keys to the empty string and trims surrounding
// whitespace, so a blank key takes the empty-key path. Fields are kept as is.
func Normalize(rec internal.CatalogRecord) NormalizedRecord {
	return NormalizedRecord{
		SetKey:   deref(rec.SetKey),
		PieceKey: deref(rec.PieceKey),
		Fields:   rec.Fields,
	}
}

func NormalizeAll(recs []internal.CatalogRecord) []NormalizedRecord {
	out := make([]NormalizedRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Normalize(rec))
	}
	return out
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
