package chat

import (
	"context"
	"sync"

	"github.com/m2tx/gemini_chat/internal/model"
	"github.com/m2tx/gemini_chat/internal/transcript"
)

type fakeBackend struct {
	mu sync.Mutex

	verifyErr error
	checkErr  error
	generate  func(ctx context.Context, req Request) (Reply, error)

	verifyCalls   int
	checkCalls    int
	generateCalls int
	requests      []Request
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Verify(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	return f.verifyErr
}

func (f *fakeBackend) CheckModel(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	return f.checkErr
}

func (f *fakeBackend) Generate(ctx context.Context, req Request) (Reply, error) {
	f.mu.Lock()
	f.generateCalls++
	f.requests = append(f.requests, req)
	gen := f.generate
	f.mu.Unlock()

	if gen == nil {
		return Reply{Text: "echo: " + req.Text, Usage: &model.Usage{TotalTokens: 1}}, nil
	}
	return gen(ctx, req)
}

func (f *fakeBackend) calls() (verify, check, generate int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls, f.checkCalls, f.generateCalls
}

func (f *fakeBackend) lastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type failingRecorder struct {
	transcript.MemoryRecorder
	err error
}

func (r *failingRecorder) Record(ctx context.Context, ex transcript.Exchange) error {
	return r.err
}
