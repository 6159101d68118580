package config

// DefaultExtensions are the file extensions synced when none are configured.
var DefaultExtensions = []string{".txt", ".md", ".rst", ".go", ".py", ".docx", ".pdf", ".xlsx"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "/usr/local/var/oshiete/storage"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434/api"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Answer.BaseURL == "" {
		cfg.Answer.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Answer.APIKeyEnv == "" {
		cfg.Answer.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "openai/gpt-4o-mini"
	}
	if cfg.Answer.Referer == "" {
		cfg.Answer.Referer = "http://localhost:3000"
	}
	if cfg.Answer.AppTitle == "" {
		cfg.Answer.AppTitle = "oshiete"
	}
	if cfg.Answer.TimeoutSeconds == 0 {
		cfg.Answer.TimeoutSeconds = 60
	}
	if cfg.Sync.Extensions == nil {
		cfg.Sync.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 3
	}
}
