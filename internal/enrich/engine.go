package enrich

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"brickcat/internal"
	"brickcat/internal/config"
	"brickcat/internal/logger"
)

// InstructionFetcher resolves a non-empty set key to its preview image.
type InstructionFetcher interface {
	InstructionImage(ctx context.Context, setKey string) (string, error)
}

type Engine struct {
	fetcher InstructionFetcher
	log     logger.Logger

	pieceImageBaseURL       string
	missingPieceURL         string
	notFoundInstructionsURL string
	policy                  FailurePolicy
	maxConcurrency          int
}

func NewEngine(cfg config.Config, fetcher InstructionFetcher, log logger.Logger) (*Engine, error) {
	policy, err := ParseFailurePolicy(cfg.EnrichFailurePolicy)
	if err != nil {
		return nil, err
	}
	return &Engine{
		fetcher:                 fetcher,
		log:                     log,
		pieceImageBaseURL:       cfg.PieceImageBaseURL,
		missingPieceURL:         cfg.MissingPieceURL,
		notFoundInstructionsURL: cfg.NotFoundInstructionsURL,
		policy:                  policy,
		maxConcurrency:          cfg.EnrichMaxConcurrency,
	}, nil
}

func (e *Engine) Policy() FailurePolicy { return e.policy }

// Enrich resolves images for req in the shape req asks for.
func (e *Engine) Enrich(ctx context.Context, req Request) (Result, error) {
	if len(req.records) == 0 {
		return Result{}, ErrEmptyBatch
	}

	switch req.shape {
	case ShapeSingle:
		single, err := e.EnrichSingle(ctx, req.records[0])
		if err != nil {
			return Result{}, err
		}
		return Result{Single: &single}, nil
	case ShapeBatch:
		batch, err := e.EnrichBatch(ctx, req.records)
		if err != nil {
			return Result{}, err
		}
		return Result{Batch: &batch}, nil
	default:
		return Result{}, fmt.Errorf("enrich: unknown request shape %d", req.shape)
	}
}

// EnrichRecords picks the shape from the record count: one record gives the
// flat pair, more give the deduplicated lists.
func (e *Engine) EnrichRecords(ctx context.Context, recs []internal.CatalogRecord) (Result, error) {
	switch len(recs) {
	case 0:
		return Result{}, ErrEmptyBatch
	case 1:
		return e.Enrich(ctx, Single(recs[0]))
	default:
		return e.Enrich(ctx, Batch(recs...))
	}
}

func (e *Engine) EnrichBatch(ctx context.Context, recs []internal.CatalogRecord) (internal.BatchImages, error) {
	if len(recs) == 0 {
		return internal.BatchImages{}, ErrEmptyBatch
	}

	norm := NormalizeAll(recs)
	sets := setKeys(norm)
	pieces := pieceKeys(norm)

	legoImages, failures, err := e.resolveSetKeys(ctx, sets)
	if err != nil {
		return internal.BatchImages{}, err
	}

	piezaImages := make([]internal.ImageResult, 0, len(pieces))
	for _, key := range pieces {
		piezaImages = append(piezaImages, internal.ImageResult{Key: key, URL: e.pieceURL(key)})
	}

	e.log.Debug("batch enriched",
		logger.Int("records", len(recs)),
		logger.Int("set_keys", len(sets)),
		logger.Int("piece_keys", len(pieces)),
		logger.Int("failures", len(failures)),
	)

	return internal.BatchImages{
		LegoImages:  legoImages,
		PiezaImages: piezaImages,
		Failures:    failures,
	}, nil
}

func (e *Engine) EnrichSingle(ctx context.Context, rec internal.CatalogRecord) (internal.SingleImages, error) {
	norm := Normalize(rec)

	imgLego := e.notFoundInstructionsURL
	if norm.SetKey != "" {
		img, err := e.fetcher.InstructionImage(ctx, norm.SetKey)
		if err != nil {
			if e.policy != PolicyFallback {
				return internal.SingleImages{}, fmt.Errorf("resolve set image: %w", err)
			}
			e.log.Warn("set image lookup failed, using fallback",
				logger.String("set_key", norm.SetKey), logger.Err(err))
			img = e.notFoundInstructionsURL
		}
		imgLego = img
	}

	return internal.SingleImages{ImgLego: imgLego, ImgPiece: e.pieceURL(norm.PieceKey)}, nil
}

type lookup struct {
	url string
	err error
}

// resolveSetKeys fetches every non-empty key concurrently. Each goroutine
// writes only its own slot, so output order follows keys.
func (e *Engine) resolveSetKeys(ctx context.Context, keys []string) ([]internal.ImageResult, []internal.KeyFailure, error) {
	results := make([]lookup, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, key := range keys {
		if key == "" {
			results[i] = lookup{url: e.notFoundInstructionsURL}
			continue
		}
		i, key := i, key
		g.Go(func() error {
			img, err := e.fetcher.InstructionImage(gctx, key)
			results[i] = lookup{url: img, err: err}
			if err != nil && e.policy == PolicyFailFast {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("resolve set images: %w", err)
	}

	images := make([]internal.ImageResult, 0, len(keys))
	var failures []internal.KeyFailure
	for i, key := range keys {
		res := results[i]
		if res.err == nil {
			images = append(images, internal.ImageResult{Key: key, URL: res.url})
			continue
		}

		e.log.Warn("set image lookup failed",
			logger.String("set_key", key),
			logger.String("policy", string(e.policy)),
			logger.Err(res.err),
		)
		failures = append(failures, internal.KeyFailure{Key: key, Error: res.err.Error()})
		if e.policy == PolicyFallback {
			images = append(images, internal.ImageResult{Key: key, URL: e.notFoundInstructionsURL})
		}
	}
	return images, failures, nil
}

func (e *Engine) pieceURL(key string) string {
	if key == "" {
		return e.missingPieceURL
	}
	return e.pieceImageBaseURL + key + ".jpg"
}
