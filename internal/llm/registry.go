package llm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ProviderConfig carries the configuration a chat adapter needs.
type ProviderConfig struct {
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// ChatFactory constructs a ChatModel from provider configuration.
type ChatFactory func(cfg ProviderConfig) (ChatModel, error)

// ErrUnknownProvider indicates the requested chat provider is not registered.
var ErrUnknownProvider = errors.New("unknown chat provider")

var (
	providersMu   sync.RWMutex
	chatProviders = make(map[string]ChatFactory)
)

// RegisterChatProvider makes a chat adapter available under name.
// Adapters register themselves from init(); registering the same name twice
// panics, as that is always a programming error.
func RegisterChatProvider(name string, factory ChatFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	if _, dup := chatProviders[name]; dup {
		panic(fmt.Sprintf("llm: chat provider %q registered twice", name))
	}
	chatProviders[name] = factory
}

// NewChatModel constructs the chat adapter registered under provider.
// The selection happens once at process start; call sites receive the
// resulting ChatModel by injection and never dispatch on provider names.
func NewChatModel(provider string, cfg ProviderConfig) (ChatModel, error) {
	providersMu.RLock()
	factory, ok := chatProviders[provider]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, provider, providerNames())
	}

	model, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %q chat model: %w", provider, err)
	}
	return model, nil
}

func providerNames() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(chatProviders))
	for name := range chatProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
