package llm

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/service"
)

// failingProvider always returns err from Complete/Embed/Chat, counting calls
// so a test can assert the circuit breaker actually stops forwarding them.
type failingProvider struct {
	err   error
	calls int
}

func (p *failingProvider) Name() string                                { return "failing" }
func (p *failingProvider) Models() []string                            { return []string{"test-model"} }
func (p *failingProvider) SupportsModel(model string) bool             { return true }
func (p *failingProvider) IsAvailable(ctx context.Context) bool        { return true }
func (p *failingProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	p.calls++
	return nil, p.err
}
func (p *failingProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.calls++
	return "", p.err
}
func (p *failingProvider) Chat(ctx context.Context, messages []service.ChatMessage, opts service.ChatOptions) (service.ChatResponse, error) {
	p.calls++
	return service.ChatResponse{}, p.err
}

func TestGuardedProvider_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingProvider{err: errors.New("boom")}
	guarded := newGuardedProvider(inner, zap.NewNop()).(*guardedProvider)
	guarded.breaker = NewCircuitBreaker(3, 0)

	for i := 0; i < 3; i++ {
		if _, err := guarded.Complete(context.Background(), "hi"); err == nil {
			t.Fatal("expected underlying error to propagate")
		}
	}
	if guarded.breaker.State() != CircuitOpen {
		t.Fatalf("expected circuit open after 3 failures, got %s", guarded.breaker.State())
	}

	callsBefore := inner.calls
	if _, err := guarded.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected circuit-open rejection")
	}
	if inner.calls != callsBefore {
		t.Error("expected the underlying provider not to be called while circuit is open")
	}
}

type okProvider struct{ failingProvider }

func (p *okProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.calls++
	return "ok", nil
}

func TestGuardedProvider_SuccessKeepsCircuitClosed(t *testing.T) {
	inner := &okProvider{}
	guarded := newGuardedProvider(inner, zap.NewNop()).(*guardedProvider)

	for i := 0; i < 10; i++ {
		if _, err := guarded.Complete(context.Background(), "hi"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if guarded.breaker.State() != CircuitClosed {
		t.Fatalf("expected circuit to remain closed on success, got %s", guarded.breaker.State())
	}
	if inner.calls != 10 {
		t.Errorf("expected 10 calls through to the underlying provider, got %d", inner.calls)
	}
}
