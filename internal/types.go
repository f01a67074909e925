package internal

import "fmt"

// Column names of the lookup keys in the lego table.
const (
	SetKeyField   = "lego"
	PieceKeyField = "pieza"
)

// Row is one raw row of the lego table keyed by column name.
type Row map[string]any

// CatalogRecord carries the two lookup keys of a row. Fields keeps the full
// row untouched for callers that need the rest of it.
type CatalogRecord struct {
	SetKey   *string
	PieceKey *string
	Fields   Row
}

func RecordFromRow(row Row) CatalogRecord {
	return CatalogRecord{
		SetKey:   keyValue(row[SetKeyField]),
		PieceKey: keyValue(row[PieceKeyField]),
		Fields:   row,
	}
}

func RecordsFromRows(rows []Row) []CatalogRecord {
	out := make([]CatalogRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, RecordFromRow(row))
	}
	return out
}

func keyValue(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case *string:
		return t
	case []byte:
		s := string(t)
		return &s
	default:
		s := fmt.Sprint(t)
		return &s
	}
}

type ImageResult struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// KeyFailure records a set key whose lookup failed under a non fail-fast policy.
type KeyFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

type BatchImages struct {
	LegoImages  []ImageResult `json:"legoImages"`
	PiezaImages []ImageResult `json:"piezaImages"`
	Failures    []KeyFailure  `json:"failures,omitempty"`
}

type SingleImages struct {
	ImgLego  string `json:"imgLego"`
	ImgPiece string `json:"imgPiece"`
}
