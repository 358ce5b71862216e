package agent

import (
	"os"
	"time"
)

// Config locates the model backend.
type Config struct {
	// OllamaHost is the base URL of the Ollama API.
	OllamaHost string

	// Model is used both for classification and for answering.
	Model string

	// ClassifyTimeout bounds the tool-routing call; streaming responses
	// run under the request's own deadline.
	ClassifyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		OllamaHost:      "http://localhost:11434",
		Model:           "llama3.2:latest",
		ClassifyTimeout: 30 * time.Second,
	}
}

// LoadConfigFromEnv reads WARD_OLLAMA_HOST and WARD_OLLAMA_MODEL,
// falling back to defaults for anything unset.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("WARD_OLLAMA_HOST"); v != "" {
		cfg.OllamaHost = v
	}
	if v := os.Getenv("WARD_OLLAMA_MODEL"); v != "" {
		cfg.Model = v
	}
	return cfg
}
