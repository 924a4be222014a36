package policies

import (
	"context"
	"io"
)

// ProofStorage keeps uploaded payment proofs and returns where they live.
type ProofStorage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}
