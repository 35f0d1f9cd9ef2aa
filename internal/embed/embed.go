// Package embed defines the embedding contract consumed by the in-process
// vector store. Production deployments plug in a real embedding API client;
// the static embedder keeps the pipeline runnable offline.
package embed

import "context"

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}
