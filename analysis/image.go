package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"

	"github.com/pithecene-io/xrayview/iox"
)

// DefaultImageFetchLimit caps a single image download.
const DefaultImageFetchLimit int64 = 32 << 20

// ErrImageTooLarge is returned when an image exceeds the fetch limit.
var ErrImageTooLarge = errors.New("image exceeds fetch limit")

// Image is a downloaded result image.
type Image struct {
	URL    string
	Format string // png, jpeg or gif
	Width  int
	Height int
	Size   int64
	Data   []byte
}

// FetchImage downloads and decodes the header of the image at url.
// A nil error means the image is loadable and can be shown.
func (c *Client) FetchImage(ctx context.Context, url string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image %s: %s", url, reasonPhrase(resp))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.fetchLimit+1))
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", url, err)
	}
	if int64(len(data)) > c.fetchLimit {
		return nil, fmt.Errorf("%w: %s (limit %d bytes)", ErrImageTooLarge, url, c.fetchLimit)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", url, err)
	}

	return &Image{
		URL:    url,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Size:   int64(len(data)),
		Data:   data,
	}, nil
}
