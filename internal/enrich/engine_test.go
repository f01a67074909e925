package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"brickcat/internal"
	"brickcat/internal/config"
	"brickcat/internal/logger"
)

const (
	testPieceBase    = "https://img.test/piece/"
	testMissingPiece = "https://img.test/missing.webp"
	testNotFound     = "https://lego.test/building-instructions/1"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, key string) (string, error)
}

func (f *fakeFetcher) InstructionImage(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, key)
	}
	return "https://img.test/set/" + key + ".webp", nil
}

func (f *fakeFetcher) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestEngine(t *testing.T, fetcher InstructionFetcher, policy string) *Engine {
	t.Helper()
	cfg := config.Config{
		PieceImageBaseURL:       testPieceBase,
		MissingPieceURL:         testMissingPiece,
		NotFoundInstructionsURL: testNotFound,
		EnrichFailurePolicy:     policy,
		EnrichMaxConcurrency:    4,
	}
	engine, err := NewEngine(cfg, fetcher, logger.NewNop())
	require.NoError(t, err)
	return engine
}

func rec(set, piece any) internal.CatalogRecord {
	return internal.RecordFromRow(internal.Row{internal.SetKeyField: set, internal.PieceKeyField: piece})
}

func keysOf(images []internal.ImageResult) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.Key)
	}
	return out
}

func TestEnrichBatchScenario(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := newTestEngine(t, fetcher, "")

	res, err := engine.EnrichRecords(context.Background(), []internal.CatalogRecord{
		rec("10221", "3001"),
		rec("", "3001"),
	})
	require.NoError(t, err)
	require.Equal(t, ShapeBatch, res.Shape())

	require.Equal(t, []internal.ImageResult{
		{Key: "10221", URL: "https://img.test/set/10221.webp"},
		{Key: "", URL: testNotFound},
	}, res.Batch.LegoImages)
	require.Equal(t, []internal.ImageResult{
		{Key: "3001", URL: testPieceBase + "3001.jpg"},
	}, res.Batch.PiezaImages)
	require.Equal(t, 1, fetcher.total())
}

func TestEnrichBatchDedupOrder(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := newTestEngine(t, fetcher, "")

	recs := []internal.CatalogRecord{
		rec("b", "y"), rec("a", "x"), rec("b", "y"), rec("c", nil), rec("a", "x"),
	}
	batch, err := engine.EnrichBatch(context.Background(), recs)
	require.NoError(t, err)

	require.Equal(t, []string{"b", "a", "c"}, keysOf(batch.LegoImages))
	require.Equal(t, []string{"y", "x", ""}, keysOf(batch.PiezaImages))
	for _, key := range []string{"a", "b", "c"} {
		require.Equal(t, 1, fetcher.callCount(key), "key %s", key)
	}
}

func TestEnrichBatchEmptySetKeysNeverFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := newTestEngine(t, fetcher, "")

	batch, err := engine.EnrichBatch(context.Background(), []internal.CatalogRecord{
		rec(nil, nil),
		rec("", ""),
		{},
	})
	require.NoError(t, err)
	require.Zero(t, fetcher.total())
	require.Equal(t, []internal.ImageResult{{Key: "", URL: testNotFound}}, batch.LegoImages)
	require.Equal(t, []internal.ImageResult{{Key: "", URL: testMissingPiece}}, batch.PiezaImages)
}

func TestEnrichBatchPieceKeysNeverFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := newTestEngine(t, fetcher, "")

	batch, err := engine.EnrichBatch(context.Background(), []internal.CatalogRecord{
		rec(nil, "3001"), rec(nil, "3002"),
	})
	require.NoError(t, err)
	require.Zero(t, fetcher.total())
	require.Equal(t, []internal.ImageResult{
		{Key: "3001", URL: testPieceBase + "3001.jpg"},
		{Key: "3002", URL: testPieceBase + "3002.jpg"},
	}, batch.PiezaImages)
}

func TestEnrichBatchOrderIndependentOfCompletion(t *testing.T) {
	secondDone := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(ctx context.Context, key string) (string, error) {
		switch key {
		case "first":
			select {
			case <-secondDone:
			case <-time.After(2 * time.Second):
				return "", errors.New("second fetch never completed")
			}
		case "second":
			defer close(secondDone)
		}
		return "img-" + key, nil
	}}
	engine := newTestEngine(t, fetcher, "")

	batch, err := engine.EnrichBatch(context.Background(), []internal.CatalogRecord{
		rec("first", nil), rec("second", nil),
	})
	require.NoError(t, err)
	require.Equal(t, []internal.ImageResult{
		{Key: "first", URL: "img-first"},
		{Key: "second", URL: "img-second"},
	}, batch.LegoImages)
}

func TestEnrichBatchFailFast(t *testing.T) {
	boom := errors.New("boom")
	fetcher := &fakeFetcher{fn: func(ctx context.Context, key string) (string, error) {
		if key == "bad" {
			return "", boom
		}
		return "img-" + key, nil
	}}
	engine := newTestEngine(t, fetcher, "fail-fast")

	res, err := engine.EnrichRecords(context.Background(), []internal.CatalogRecord{
		rec("ok1", nil), rec("bad", nil), rec("ok2", nil),
	})
	require.ErrorIs(t, err, boom)
	require.Nil(t, res.Batch)
	require.Nil(t, res.Single)
}

func TestEnrichBatchFailFastCancelsOutstanding(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(ctx context.Context, key string) (string, error) {
		if key == "bad" {
			return "", errors.New("boom")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "img-" + key, nil
		}
	}}
	engine := newTestEngine(t, fetcher, "fail-fast")

	start := time.Now()
	_, err := engine.EnrichBatch(context.Background(), []internal.CatalogRecord{
		rec("slow", nil), rec("bad", nil),
	})
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestEnrichBatchPartialPolicy(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(ctx context.Context, key string) (string, error) {
		if key == "bad" {
			return "", errors.New("no webp source")
		}
		return "img-" + key, nil
	}}
	engine := newTestEngine(t, fetcher, "partial")

	batch, err := engine.EnrichBatch(context.Background(), []internal.CatalogRecord{
		rec("ok1", nil), rec("bad", nil), rec("", nil), rec("ok2", nil),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ok1", "", "ok2"}, keysOf(batch.LegoImages))
	require.Equal(t, []internal.KeyFailure{{Key: "bad", Error: "no webp source"}}, batch.Failures)
}

func TestEnrichBatchFallbackPolicy(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(ctx context.Context, key string) (string, error) {
		if key == "bad" {
			return "", errors.New("status 500")
		}
		return "img-" + key, nil
	}}
	engine := newTestEngine(t, fetcher, "fallback")

	batch, err := engine.EnrichBatch(context.Background(), []internal.CatalogRecord{
		rec("bad", nil), rec("ok", nil),
	})
	require.NoError(t, err)
	require.Equal(t, []internal.ImageResult{
		{Key: "bad", URL: testNotFound},
		{Key: "ok", URL: "img-ok"},
	}, batch.LegoImages)
	require.Len(t, batch.Failures, 1)
}

func TestEnrichSingle(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := newTestEngine(t, fetcher, "")

	res, err := engine.EnrichRecords(context.Background(), []internal.CatalogRecord{rec("10221", "3001")})
	require.NoError(t, err)
	require.Equal(t, ShapeSingle, res.Shape())
	require.Equal(t, internal.SingleImages{
		ImgLego:  "https://img.test/set/10221.webp",
		ImgPiece: testPieceBase + "3001.jpg",
	}, *res.Single)
}

func TestEnrichSingleFallbacks(t *testing.T) {
	fetcher := &fakeFetcher{}
	engine := newTestEngine(t, fetcher, "")

	single, err := engine.EnrichSingle(context.Background(), rec(nil, ""))
	require.NoError(t, err)
	require.Equal(t, internal.SingleImages{ImgLego: testNotFound, ImgPiece: testMissingPiece}, single)
	require.Zero(t, fetcher.total())
}

func TestEnrichSingleFailure(t *testing.T) {
	boom := errors.New("boom")
	fetcher := &fakeFetcher{fn: func(context.Context, string) (string, error) { return "", boom }}

	_, err := newTestEngine(t, fetcher, "partial").EnrichSingle(context.Background(), rec("10221", nil))
	require.ErrorIs(t, err, boom)

	single, err := newTestEngine(t, fetcher, "fallback").EnrichSingle(context.Background(), rec("10221", nil))
	require.NoError(t, err)
	require.Equal(t, testNotFound, single.ImgLego)
}

func TestEnrichExplicitShapes(t *testing.T) {
	engine := newTestEngine(t, &fakeFetcher{}, "")
	ctx := context.Background()

	res, err := engine.Enrich(ctx, Batch(rec("10221", "3001")))
	require.NoError(t, err)
	require.Equal(t, ShapeBatch, res.Shape())
	require.Len(t, res.Batch.LegoImages, 1)

	res, err = engine.Enrich(ctx, Single(rec("10221", "3001")))
	require.NoError(t, err)
	require.Equal(t, ShapeSingle, res.Shape())

	_, err = engine.Enrich(ctx, Batch())
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = engine.EnrichRecords(ctx, nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestResultJSONShapes(t *testing.T) {
	engine := newTestEngine(t, &fakeFetcher{}, "")
	ctx := context.Background()

	single, err := engine.Enrich(ctx, Single(rec("10221", "3001")))
	require.NoError(t, err)
	blob, err := json.Marshal(single)
	require.NoError(t, err)
	require.JSONEq(t, `{"imgLego":"https://img.test/set/10221.webp","imgPiece":"https://img.test/piece/3001.jpg"}`, string(blob))

	batch, err := engine.Enrich(ctx, Batch(rec("10221", "3001"), rec("10221", "")))
	require.NoError(t, err)
	blob, err = json.Marshal(batch)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"legoImages":[{"key":"10221","url":"https://img.test/set/10221.webp"}],
		"piezaImages":[{"key":"3001","url":"https://img.test/piece/3001.jpg"},{"key":"","url":"https://img.test/missing.webp"}]
	}`, string(blob))
}

func TestNewEngineRejectsUnknownPolicy(t *testing.T) {
	_, err := NewEngine(config.Config{EnrichFailurePolicy: "retry"}, &fakeFetcher{}, logger.NewNop())
	require.Error(t, err)
}
