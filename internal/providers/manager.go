package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager fans one embed request across the configured providers in preferred
// order (real providers before mock), skipping providers that are cooling down
// after quota or rate failures. It satisfies EmbeddingProvider itself, so
// vector stores can take either a single provider or the whole manager.
type Manager struct {
	providers []NamedEmbedProvider
	dim       int
	cooldown  time.Duration
	log       *zap.Logger

	mu            sync.Mutex
	disabledUntil map[int]time.Time
	now           func() time.Time
}

func NewManager(spec string, dim int, cooldown time.Duration, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	refs := ParseProviderList(spec)
	m := &Manager{
		dim:           dim,
		cooldown:      cooldown,
		log:           log,
		disabledUntil: map[int]time.Time{},
		now:           time.Now,
	}
	for _, ref := range refs {
		p, err := buildProvider(ref, dim)
		if err != nil {
			return nil, err
		}
		m.providers = append(m.providers, NamedEmbedProvider{Ref: ref, Provider: p})
	}
	if len(m.providers) == 0 {
		m.providers = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(dim)}}
	}
	return m, nil
}

func (m *Manager) Count() int { return len(m.providers) }

func (m *Manager) Refs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.providers))
	for i := range m.providers {
		out = append(out, m.providers[i].Ref)
	}
	return out
}

func (m *Manager) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if req.Dimension <= 0 {
		req.Dimension = m.dim
	}
	var lastErr error
	var lastInfo ProviderInfo
	for _, idx := range m.preferredOrder() {
		if m.isDisabled(idx) {
			continue
		}
		entry := m.providers[idx]
		vectors, info, err := entry.Provider.Embed(ctx, req)
		if err == nil {
			return vectors, info, nil
		}
		lastErr = err
		lastInfo = info
		switch ClassifyError(err) {
		case ErrorQuota:
			m.disable(idx, m.cooldown)
		case ErrorRate:
			m.disable(idx, 2*time.Minute)
		case ErrorTransient:
			// leave enabled; the next call may reach a recovered service
		default:
			m.disable(idx, time.Minute)
		}
		m.log.Warn("embedding provider failed",
			zap.String("provider", entry.Ref.Raw),
			zap.String("error_type", string(ClassifyError(err))),
			zap.Error(err))
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embedding providers are cooling down")
	}
	return nil, lastInfo, fmt.Errorf("embed via configured providers: %w", lastErr)
}

func (m *Manager) preferredOrder() []int {
	n := len(m.providers)
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if strings.ToLower(m.providers[i].Ref.Name) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if strings.ToLower(m.providers[i].Ref.Name) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func (m *Manager) isDisabled(idx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.disabledUntil[idx]
	return ok && m.now().Before(until)
}

func (m *Manager) disable(idx int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabledUntil[idx] = m.now().Add(d)
}

func buildProvider(ref ProviderRef, dim int) (EmbeddingProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ref.Name)
	}
}
