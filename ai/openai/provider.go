// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"log/slog"

	"github.com/poiesic/scriptorium/ai"
)

// Provider owns the embedding client for one service endpoint.
type Provider struct {
	embedder *Embedder
	logger   *slog.Logger
}

// NewProvider validates config (normalizing the host to end in /v1) and
// builds the embedding client.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider", "host", config.EmbeddingHost)
	logger.Debug("embedding provider ready", "model", config.EmbeddingModel, "dimension", config.Dimension)
	return &Provider{
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Embedder returns the embedding client.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close is a no-op; the HTTP client holds no per-provider resources.
func (p *Provider) Close() error {
	p.logger.Debug("closing embedding provider")
	return nil
}
