package factory

import (
	"github.com/rvbbit/rvbbit/internal/config"
	"github.com/rvbbit/rvbbit/internal/llm"
	"github.com/rvbbit/rvbbit/internal/llm/fakeclient"
	"github.com/rvbbit/rvbbit/internal/llm/httpclient"
)

// newLLMClient builds the llm.Client selected by cfg.LLMProvider.
func newLLMClient(cfg *config.Config) llm.Client {
	if cfg.LLMProvider == "fake" {
		return fakeclient.New()
	}
	return httpclient.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMProvider)
}
