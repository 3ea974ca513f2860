package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MegaGrindStone/chat-widget/internal/chat"
	"github.com/MegaGrindStone/chat-widget/internal/handlers"
	"github.com/MegaGrindStone/chat-widget/internal/services"
	"gopkg.in/yaml.v3"
)

type backendConfig interface {
	transports(systemPrompt string, logger *slog.Logger) (handlers.TransportFactory, error)
}

// BaseBackendConfig contains the common fields for all backend configurations.
type BaseBackendConfig struct {
	Provider string `yaml:"provider"`
}

type config struct {
	Port          string        `yaml:"port"`
	StorePath     string        `yaml:"storePath"`
	AssistantName string        `yaml:"assistantName"`
	SystemPrompt  string        `yaml:"systemPrompt"`
	Welcome       string        `yaml:"welcome"`
	Examples      []string      `yaml:"examples"`
	Log           logConfig     `yaml:"log"`
	Sessions      sessionConfig `yaml:"sessions"`
	Backend       backendConfig `yaml:"backend"`
}

// sessionConfig bounds the sessions kept in memory. Zero values fall back to the handler defaults.
type sessionConfig struct {
	Max         int           `yaml:"max"`
	IdleTimeout time.Duration `yaml:"idleTimeout"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type httpBackendConfig struct {
	BaseBackendConfig `yaml:",inline"`
	URL               string `yaml:"url"`
}

type ollamaConfig struct {
	BaseBackendConfig `yaml:",inline"`
	Model             string `yaml:"model"`
	Host              string `yaml:"host"`
}

type anthropicConfig struct {
	BaseBackendConfig `yaml:",inline"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	Endpoint          string `yaml:"endpoint"`
	MaxTokens         int    `yaml:"maxTokens"`
}

type openAIConfig struct {
	BaseBackendConfig `yaml:",inline"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	BaseURL           string `yaml:"baseURL"`
}

const (
	defaultPort       = "8080"
	defaultBackendURL = "http://localhost:5000"
	defaultOllamaHost = "http://localhost:11434"
	defaultWelcome    = "Hello! I'm your **Internship Assistant**. Ask me about applications, " +
		"interviews, timelines or where to find opportunities."
)

var defaultExamples = []string{
	"How do I write a good internship application?",
	"What should I expect in a technical interview?",
	"Are there internships available for freshmen?",
	"How can I find remote internship opportunities?",
	"What's the typical internship timeline for summer programs?",
}

func defaultConfig() config {
	return config{
		Port:     defaultPort,
		Welcome:  defaultWelcome,
		Examples: defaultExamples,
		Log:      logConfig{Level: "info", Format: "text"},
		Backend:  &httpBackendConfig{BaseBackendConfig: BaseBackendConfig{Provider: "http"}},
	}
}

func loadConfig(r io.Reader) (config, error) {
	cfg := defaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port          string         `yaml:"port"`
		StorePath     string         `yaml:"storePath"`
		AssistantName string         `yaml:"assistantName"`
		SystemPrompt  string         `yaml:"systemPrompt"`
		Welcome       string         `yaml:"welcome"`
		Examples      []string       `yaml:"examples"`
		Log           logConfig      `yaml:"log"`
		Sessions      sessionConfig  `yaml:"sessions"`
		Backend       map[string]any `yaml:"backend"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.Welcome != "" {
		c.Welcome = rawConfig.Welcome
	}
	if rawConfig.Examples != nil {
		c.Examples = rawConfig.Examples
	}
	if rawConfig.Log.Level != "" {
		c.Log.Level = rawConfig.Log.Level
	}
	if rawConfig.Log.Format != "" {
		c.Log.Format = rawConfig.Log.Format
	}
	c.StorePath = rawConfig.StorePath
	c.AssistantName = rawConfig.AssistantName
	c.SystemPrompt = rawConfig.SystemPrompt
	c.Sessions = rawConfig.Sessions

	if rawConfig.Backend == nil {
		return nil
	}

	provider, ok := rawConfig.Backend["provider"].(string)
	if !ok {
		return fmt.Errorf("backend provider is required")
	}

	backendRawYAML, err := yaml.Marshal(rawConfig.Backend)
	if err != nil {
		return err
	}

	var backend backendConfig
	switch provider {
	case "http":
		backend = &httpBackendConfig{}
	case "ollama":
		backend = &ollamaConfig{}
	case "anthropic":
		backend = &anthropicConfig{}
	case "openai":
		backend = &openAIConfig{}
	default:
		return fmt.Errorf("unknown backend provider: %s", provider)
	}

	if err := yaml.Unmarshal(backendRawYAML, backend); err != nil {
		return err
	}

	c.Backend = backend

	return nil
}

func (c logConfig) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", c.Format)
	}
}

func (h httpBackendConfig) transports(_ string, logger *slog.Logger) (handlers.TransportFactory, error) {
	url := h.URL
	if url == "" {
		url = os.Getenv("CHATWIDGET_BACKEND_URL")
	}
	if url == "" {
		url = defaultBackendURL
	}

	backend := services.NewHTTPBackend(url, logger)
	return func(string) chat.Transport { return backend }, nil
}

func (o ollamaConfig) transports(systemPrompt string, _ *slog.Logger) (handlers.TransportFactory, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = defaultOllamaHost
	}
	// Validate the host once so that the factory itself cannot fail.
	if _, err := services.NewOllama(host, o.Model, systemPrompt); err != nil {
		return nil, err
	}

	return func(string) chat.Transport {
		ollama, _ := services.NewOllama(host, o.Model, systemPrompt)
		return ollama
	}, nil
}

func (a anthropicConfig) transports(systemPrompt string, _ *slog.Logger) (handlers.TransportFactory, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	return func(string) chat.Transport {
		return services.NewAnthropic(apiKey, a.Endpoint, a.Model, systemPrompt, a.MaxTokens)
	}, nil
}

func (o openAIConfig) transports(systemPrompt string, logger *slog.Logger) (handlers.TransportFactory, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return func(string) chat.Transport {
		return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, logger)
	}, nil
}
