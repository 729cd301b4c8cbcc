// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/docuchatco/docuchat/pkg/embeddings"
	"github.com/docuchatco/docuchat/pkg/embeddings/ollama"
	"github.com/docuchatco/docuchat/pkg/embeddings/openai"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	APIKey       string
	APIVersion   string
	Model        string
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "openai":
		return openai.NewEmbedder(openai.Config{
			BaseURL:    o.TargetURL,
			APIKey:     o.APIKey,
			APIVersion: o.APIVersion,
			Model:      o.Model,
		})
	case "ollama":
		return ollama.NewEmbedder(ollama.Config{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
