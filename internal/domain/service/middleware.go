// Copyright 2026 NGOClaw Authors. All rights reserved.
package service

import "context"

// Middleware defines a data-transformation hook around LLM calls. Unlike
// AgentHook (observational, side-effect only), Middleware can MODIFY
// messages before a call and the response after. The kernel holds a
// pipeline (SetMiddleware), but neither the kernel loop nor the decision
// pipeline runs it.
//
//	Hook = side-channel (metrics, logging, veto)
//	MW   = main-line    (inject context, trim response)
type Middleware interface {
	// Name returns a human-readable identifier for logging/debugging.
	Name() string

	// BeforeModel is called before each LLM request. It receives the
	// current messages slice and MUST return a (possibly modified) copy;
	// implementations SHOULD NOT mutate the input slice in place.
	BeforeModel(ctx context.Context, messages []ChatMessage, step int) []ChatMessage

	// AfterModel is called after each successful LLM response.
	AfterModel(ctx context.Context, resp *ChatResponse, step int) *ChatResponse
}

// MiddlewarePipeline chains multiple Middleware in order. BeforeModel runs
// in registration order; AfterModel runs in reverse order, like HTTP
// middleware unwinding.
type MiddlewarePipeline struct {
	middlewares []Middleware
}

// NewMiddlewarePipeline creates an empty pipeline.
func NewMiddlewarePipeline() *MiddlewarePipeline {
	return &MiddlewarePipeline{middlewares: make([]Middleware, 0, 4)}
}

// Use appends one or more middlewares to the pipeline.
func (p *MiddlewarePipeline) Use(mws ...Middleware) {
	p.middlewares = append(p.middlewares, mws...)
}

// Len returns the number of registered middlewares.
func (p *MiddlewarePipeline) Len() int {
	return len(p.middlewares)
}

// RunBeforeModel executes all BeforeModel hooks in order.
func (p *MiddlewarePipeline) RunBeforeModel(ctx context.Context, messages []ChatMessage, step int) []ChatMessage {
	for _, mw := range p.middlewares {
		messages = mw.BeforeModel(ctx, messages, step)
	}
	return messages
}

// RunAfterModel executes all AfterModel hooks in REVERSE order.
func (p *MiddlewarePipeline) RunAfterModel(ctx context.Context, resp *ChatResponse, step int) *ChatResponse {
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		resp = p.middlewares[i].AfterModel(ctx, resp, step)
	}
	return resp
}

// NoOpMiddleware provides pass-through defaults. Embed in custom middleware
// to only override the methods you need.
type NoOpMiddleware struct{}

func (NoOpMiddleware) BeforeModel(_ context.Context, msgs []ChatMessage, _ int) []ChatMessage {
	return msgs
}

func (NoOpMiddleware) AfterModel(_ context.Context, resp *ChatResponse, _ int) *ChatResponse {
	return resp
}
