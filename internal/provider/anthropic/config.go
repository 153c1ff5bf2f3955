package anthropic

// Config contains Anthropic connection settings.
type Config struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	BaseURL string `env:"ANTHROPIC_API_URL" envDefault:"https://api.anthropic.com"`
	Version string `env:"ANTHROPIC_VERSION" envDefault:"2023-06-01"`
}
