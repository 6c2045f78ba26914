package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/citevault/citevault/internal/core"
)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractText converts the raw bytes with docconv and streams the result as
// trimmed, non-empty line fragments.
func (e *DocconvExtractor) ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error) {
	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
		if err != nil {
			return fmt.Errorf("docconv convert (%s): %w", contentType, err)
		}
		if res.Body == "" {
			return fmt.Errorf("docconv: empty extraction for content type %s", contentType)
		}

		for _, line := range strings.Split(res.Body, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return out, nil
}
