package color

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"storefront/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// sampleSize is the edge of the square the image is scaled down to.
	sampleSize = 50
	// sampleStride is the byte step through the RGBA buffer: every 4th pixel.
	sampleStride = 16
	// maxImageBytes bounds how much of a response body is decoded.
	maxImageBytes = 20 << 20
)

// Cache stores previously sampled colors keyed by image URL.
type Cache interface {
	Get(ctx context.Context, imageURL string) (RGB, bool)
	Set(ctx context.Context, imageURL string, c RGB)
}

// Sampler extracts dominant colors from remote images.
type Sampler struct {
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	cache   Cache
	timeout time.Duration
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithHTTPClient sets the client used to fetch images.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sampler) { s.client = client }
}

// WithCache enables a color cache.
func WithCache(cache Cache) Option {
	return func(s *Sampler) { s.cache = cache }
}

// WithMetrics records sampling outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sampler) { s.metrics = m }
}

// WithTimeout bounds a single image fetch. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sampler) { s.timeout = d }
}

// NewSampler creates a Sampler.
func NewSampler(logger *zap.Logger, opts ...Option) *Sampler {
	s := &Sampler{
		client: http.DefaultClient,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// ExtractDominantColor returns the average color of the image at imageURL.
// It never fails: any fetch or decode problem yields Fallback.
func (s *Sampler) ExtractDominantColor(ctx context.Context, imageURL string) RGB {
	if s.cache != nil {
		if c, ok := s.cache.Get(ctx, imageURL); ok {
			s.metrics.ColorSample(metrics.ColorCached)
			return c
		}
	}

	img, err := s.fetch(ctx, imageURL)
	if err != nil {
		s.logger.Debug("Color sampling fell back",
			zap.String("image_url", imageURL),
			zap.Error(err),
		)
		s.metrics.ColorSample(metrics.ColorFallback)
		return Fallback
	}

	c := AverageColor(img)
	s.metrics.ColorSample(metrics.ColorSampled)

	if s.cache != nil {
		s.cache.Set(ctx, imageURL, c)
	}

	return c
}

func (s *Sampler) fetch(ctx context.Context, imageURL string) (image.Image, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected image status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return img, nil
}

// AverageColor scales img down to a 50x50 square with bilinear smoothing and
// averages the channels of every 4th pixel.
func AverageColor(img image.Image) RGB {
	if img.Bounds().Empty() {
		return Fallback
	}

	dst := image.NewNRGBA(image.Rect(0, 0, sampleSize, sampleSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var r, g, b, count uint64
	for i := 0; i+2 < len(dst.Pix); i += sampleStride {
		r += uint64(dst.Pix[i])
		g += uint64(dst.Pix[i+1])
		b += uint64(dst.Pix[i+2])
		count++
	}

	return RGB{
		R: uint8(r / count),
		G: uint8(g / count),
		B: uint8(b / count),
	}
}
