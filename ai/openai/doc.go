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

// Package openai provides the embedding client for OpenAI-compatible APIs.
//
// This package implements ai.AIProvider using the langchaingo library. The
// DashScope compatible-mode endpoint, Ollama, LocalAI, and vLLM all speak the
// same protocol.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithEmbeddingHost("https://dashscope.aliyuncs.com/compatible-mode"), // /v1 added automatically
//	    ai.WithEmbeddingModel("text-embedding-v4"),
//	    ai.WithAPIKey(key),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "sample text")
package openai
