package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dealhound/dealhound/internal/llm"
)

// Execute runs every requested call concurrently and returns results keyed by
// call ID. A failing call fills its own slot with a failed result without
// affecting siblings; Execute itself never returns an error.
func (r *Registry) Execute(ctx context.Context, calls []llm.ToolCall) map[string]Result {
	results := make(map[string]Result, len(calls))
	if len(calls) == 0 {
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, call := range calls {
		wg.Add(1)
		go func(call llm.ToolCall) {
			defer wg.Done()
			res := r.safeRun(ctx, call)
			mu.Lock()
			results[call.ID] = res
			mu.Unlock()
		}(call)
	}
	wg.Wait()
	return results
}

// safeRun shields the executor from a panicking handler.
func (r *Registry) safeRun(ctx context.Context, call llm.ToolCall) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", call.Name, "panic", rec)
			res = Result{Tool: call.Name, Success: false, Error: fmt.Sprintf("tool %s failed", call.Name)}
		}
	}()
	return r.run(ctx, call.Name, json.RawMessage(call.Arguments))
}
