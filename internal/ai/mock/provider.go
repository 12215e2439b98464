package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// MockProvider satisfies models.Generator and models.Transcriber for tests and
// local development. Unset funcs fall back to canned answers.
type MockProvider struct {
	Name_          string
	ProbeFunc      func(ctx context.Context) error
	GenerateFunc   func(ctx context.Context, req models.GenerateRequest) (string, error)
	TranscribeFunc func(ctx context.Context, req models.TranscribeRequest) (string, error)

	mu             sync.Mutex
	probeCalls     int
	generateCalls  int
	transcribeCall int
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Probe(ctx context.Context) error {
	m.mu.Lock()
	m.probeCalls++
	m.mu.Unlock()
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx)
	}
	return nil
}

func (m *MockProvider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.generateCalls++
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if req.JSON {
		return `{}`, nil
	}
	return "Mock generation for testing", nil
}

func (m *MockProvider) Transcribe(ctx context.Context, req models.TranscribeRequest) (string, error) {
	m.mu.Lock()
	m.transcribeCall++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, req)
	}
	return fmt.Sprintf("Mock transcript of %s", req.FileName), nil
}

// Calls returns how many times each method ran.
func (m *MockProvider) Calls() (probe, generate, transcribe int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeCalls, m.generateCalls, m.transcribeCall
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{Name_: "mock:default"}
}

// NewFailingProvider returns a MockProvider whose probe succeeds but every call returns err.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock:failing",
		GenerateFunc: func(context.Context, models.GenerateRequest) (string, error) {
			return "", err
		},
		TranscribeFunc: func(context.Context, models.TranscribeRequest) (string, error) {
			return "", err
		},
	}
}

// NewUnreachableProvider returns a MockProvider whose probe fails with err.
func NewUnreachableProvider(name string, err error) *MockProvider {
	return &MockProvider{
		Name_:     name,
		ProbeFunc: func(context.Context) error { return err },
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until the context is done.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock:timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		TranscribeFunc: func(ctx context.Context, _ models.TranscribeRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Response is one scripted answer.
type Response struct {
	Text string
	Err  error
}

var ErrScriptExhausted = errors.New("mock script exhausted")

// NewScriptedProvider answers successive Generate and Transcribe calls with
// responses in order, sharing one script.
func NewScriptedProvider(responses ...Response) *MockProvider {
	var (
		mu   sync.Mutex
		next int
	)
	pop := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(responses) {
			return "", ErrScriptExhausted
		}
		r := responses[next]
		next++
		return r.Text, r.Err
	}
	return &MockProvider{
		Name_: "mock:scripted",
		GenerateFunc: func(context.Context, models.GenerateRequest) (string, error) {
			return pop()
		},
		TranscribeFunc: func(context.Context, models.TranscribeRequest) (string, error) {
			return pop()
		},
	}
}

// Compile-time checks.
var (
	_ models.Generator   = (*MockProvider)(nil)
	_ models.Transcriber = (*MockProvider)(nil)
)
