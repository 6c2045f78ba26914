package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DocumentExtractor turns raw document bytes into a stream of text fragments.
// The contentType hint selects the parsing strategy.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error)
}
