package syndication

import "context"

// Observer is notified about committed transitions and finished runs.
// Implementations must be safe for concurrent use.
type Observer interface {
	OnTransition(ctx context.Context, t Transition)
	OnRun(ctx context.Context, r *Report)
}

// Observers fans out to several observers.
type Observers []Observer

func (obs Observers) OnTransition(ctx context.Context, t Transition) {
	for _, o := range obs {
		o.OnTransition(ctx, t)
	}
}

func (obs Observers) OnRun(ctx context.Context, r *Report) {
	for _, o := range obs {
		o.OnRun(ctx, r)
	}
}

type nopObserver struct{}

func (nopObserver) OnTransition(context.Context, Transition) {}
func (nopObserver) OnRun(context.Context, *Report)           {}
