package enrich

import (
	"encoding/json"
	"errors"

	"brickcat/internal"
)

// ErrEmptyBatch is returned when a request carries no records.
var ErrEmptyBatch = errors.New("enrich: no records")

type Shape int

const (
	ShapeSingle Shape = iota + 1
	ShapeBatch
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// Request selects the response shape explicitly. Build one with Single or Batch.
type Request struct {
	shape   Shape
	records []internal.CatalogRecord
}

func Single(rec internal.CatalogRecord) Request {
	return Request{shape: ShapeSingle, records: []internal.CatalogRecord{rec}}
}

func Batch(recs ...internal.CatalogRecord) Request {
	return Request{shape: ShapeBatch, records: recs}
}

func (r Request) Shape() Shape { return r.shape }

func (r Request) Records() []internal.CatalogRecord { return r.records }

// Result holds exactly one of the two payload shapes.
type Result struct {
	Batch  *internal.BatchImages
	Single *internal.SingleImages
}

func (r Result) Shape() Shape {
	switch {
	case r.Single != nil:
		return ShapeSingle
	case r.Batch != nil:
		return ShapeBatch
	default:
		return 0
	}
}

// MarshalJSON encodes whichever shape is present, so the result can be
// embedded as-is in a response body.
func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case r.Single != nil:
		return json.Marshal(r.Single)
	case r.Batch != nil:
		return json.Marshal(r.Batch)
	default:
		return []byte("null"), nil
	}
}
