package ollama

// Config contains Ollama connection settings.
type Config struct {
	BaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
}
