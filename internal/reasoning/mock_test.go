package reasoning

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/interview-cli/pkg/anthropic"
	"github.com/sells-group/interview-cli/pkg/gemini"
	"github.com/sells-group/interview-cli/pkg/openai"
)

type mockAnthropic struct{ mock.Mock }

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockGemini struct{ mock.Mock }

func (m *mockGemini) Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.GenerateResponse), args.Error(1)
}

type mockOpenAI struct{ mock.Mock }

func (m *mockOpenAI) Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.CompletionResponse), args.Error(1)
}

// stubService returns scripted results in order and counts calls.
type stubService struct {
	results []stubResult
	calls   int
}

type stubResult struct {
	resp *Response
	err  error
}

func (s *stubService) Generate(ctx context.Context, _ Request) (*Response, error) {
	i := s.calls
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i].resp, s.results[i].err
}
