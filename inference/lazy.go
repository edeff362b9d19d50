package inference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// LoadError reports that the artifacts could not be loaded on demand.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model artifacts: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Lazy defers loading a Service until the first prediction. Concurrent first
// calls share one load; a failed load is retried on the next call.
type Lazy struct {
	mu   sync.Mutex
	load func() (*Service, error)
	svc  atomic.Pointer[Service]
}

// NewLazy returns a Lazy that calls load on first use.
func NewLazy(load func() (*Service, error)) *Lazy {
	return &Lazy{load: load}
}

// Service returns the loaded service, loading it if needed.
func (l *Lazy) Service() (*Service, error) {
	if svc := l.svc.Load(); svc != nil {
		return svc, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if svc := l.svc.Load(); svc != nil {
		return svc, nil
	}
	svc, err := l.load()
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	l.svc.Store(svc)
	return svc, nil
}

// PredictOne loads the service if needed, then predicts rec.
func (l *Lazy) PredictOne(ctx context.Context, rec Record) (Result, error) {
	svc, err := l.Service()
	if err != nil {
		return Result{}, err
	}
	return svc.PredictOne(ctx, rec)
}

func (l *Lazy) PredictBatch(ctx context.Context, recs []Record) ([]Result, error) {
	svc, err := l.Service()
	if err != nil {
		return nil, err
	}
	return svc.PredictBatch(ctx, recs)
}
