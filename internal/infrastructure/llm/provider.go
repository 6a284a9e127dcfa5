package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/service"
	"go.uber.org/zap"
)

// Provider is the infrastructure-layer LLM provider interface: every
// concrete provider satisfies the kernel's service.LLMAdapter contract
// (Complete/Embed/Chat) plus the metadata a multi-provider router needs.
type Provider interface {
	service.LLMAdapter

	// Name returns the provider identifier (e.g. "bailian", "claude")
	Name() string

	// Models returns the list of supported model identifiers
	Models() []string

	// SupportsModel checks if a specific model is supported
	SupportsModel(model string) bool

	// IsAvailable checks if the provider is reachable
	IsAvailable(ctx context.Context) bool
}

// ProviderConfig holds configuration for an LLM provider.
type ProviderConfig struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`      // registered factory type; "openai" (default) is the only one built in
	BaseURL  string   `json:"base_url"`
	APIKey   string   `json:"api_key"`
	Models   []string `json:"models"`
	Priority int      `json:"priority"` // Lower = higher priority
}

// --- Provider Factory Registry ---
// Providers register themselves via init() in their own package.
// Adding a new provider type = implement Provider + RegisterFactory("type", New).

// ProviderFactory creates a Provider from config.
type ProviderFactory func(cfg ProviderConfig, logger *zap.Logger) Provider

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterFactory registers a provider factory for the given type name.
// Called from init() in each provider sub-package (e.g. llm/openai).
func RegisterFactory(typeName string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

// CreateProvider creates a Provider using the registered factory for cfg.Type.
// If Type is empty, defaults to "openai" for backward compatibility.
func CreateProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	t := cfg.Type
	if t == "" {
		t = "openai"
	}

	factoryMu.RLock()
	factory, ok := factories[t]
	factoryMu.RUnlock()

	if !ok {
		available := make([]string, 0, len(factories))
		factoryMu.RLock()
		for k := range factories {
			available = append(available, k)
		}
		factoryMu.RUnlock()
		return nil, fmt.Errorf("unknown provider type %q (available: %v)", t, available)
	}

	return newGuardedProvider(factory(cfg, logger), logger), nil
}

// guardedProvider wraps a Provider with a circuit breaker so a provider
// failing consecutively stops taking traffic for a cooldown window instead
// of letting every call queue up behind the same dead endpoint.
type guardedProvider struct {
	Provider
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func newGuardedProvider(p Provider, logger *zap.Logger) Provider {
	return &guardedProvider{
		Provider: p,
		breaker:  NewCircuitBreaker(5, 30*time.Second),
		logger:   logger,
	}
}

func (g *guardedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if !g.breaker.Allow() {
		return "", fmt.Errorf("provider %s: circuit open, rejecting call", g.Name())
	}
	out, err := g.Provider.Complete(ctx, prompt)
	g.record(err)
	return out, err
}

func (g *guardedProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("provider %s: circuit open, rejecting call", g.Name())
	}
	out, err := g.Provider.Embed(ctx, text)
	g.record(err)
	return out, err
}

func (g *guardedProvider) Chat(ctx context.Context, messages []service.ChatMessage, opts service.ChatOptions) (service.ChatResponse, error) {
	if !g.breaker.Allow() {
		return service.ChatResponse{}, fmt.Errorf("provider %s: circuit open, rejecting call", g.Name())
	}
	resp, err := g.Provider.Chat(ctx, messages, opts)
	g.record(err)
	return resp, err
}

func (g *guardedProvider) record(err error) {
	if err != nil {
		g.breaker.RecordFailure()
		if g.breaker.State() == CircuitOpen {
			g.logger.Warn("LLM provider circuit opened", zap.String("provider", g.Name()))
		}
		return
	}
	g.breaker.RecordSuccess()
}
