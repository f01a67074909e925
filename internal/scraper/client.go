package scraper

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"brickcat/internal/config"
	"brickcat/internal/logger"
)

// Client fetches building-instruction pages and pulls the preview image out
// of them. Failed requests are not retried.
type Client struct {
	baseURL string
	http    *resty.Client
	limiter *RateLimiter
	log     logger.Logger
}

func NewClient(cfg config.Config, log logger.Logger) *Client {
	http := resty.New().
		SetTimeout(cfg.ScraperTimeout()).
		SetHeader("Accept", "text/html").
		SetHeader("User-Agent", cfg.ScraperUserAgent)

	return &Client{
		baseURL: cfg.InstructionBaseURL,
		http:    http,
		limiter: NewRateLimiter(cfg.ScraperRateLimitRPS),
		log:     log,
	}
}

// PageURL is the instruction page address for a set key. The key is only
// escaped; callers pass it already normalized.
func (c *Client) PageURL(setKey string) string {
	return c.baseURL + url.PathEscape(setKey)
}

// InstructionImage fetches the instruction page for setKey and returns the
// first webp candidate found on it.
func (c *Client) InstructionImage(ctx context.Context, setKey string) (string, error) {
	pageURL := c.PageURL(setKey)

	if err := c.limiter.WaitTurn(ctx); err != nil {
		return "", &FetchError{Key: setKey, URL: pageURL, Err: err}
	}

	start := time.Now()
	res, err := c.http.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return "", &FetchError{Key: setKey, URL: pageURL, Err: err}
	}
	c.log.Debug("instruction page fetched",
		logger.String("set_key", setKey),
		logger.Int("status", res.StatusCode()),
		logger.Duration("duration", time.Since(start)),
	)
	if !res.IsSuccess() {
		return "", &FetchError{Key: setKey, URL: pageURL, StatusCode: res.StatusCode()}
	}

	img, err := ExtractInstructionImage(bytes.NewReader(res.Body()))
	if err != nil {
		return "", &ExtractionError{Key: setKey, URL: pageURL, Err: err}
	}
	return img, nil
}

// IsLookupError reports whether err came from a fetch or an extraction.
func IsLookupError(err error) bool {
	var fetchErr *FetchError
	var extractErr *ExtractionError
	return errors.As(err, &fetchErr) || errors.As(err, &extractErr)
}
