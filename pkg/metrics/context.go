package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewRelicContextKey is the context key under which the New Relic application
// is stored.
type NewRelicContextKey struct{}

// NewContext returns a child context carrying the New Relic application. A nil
// application leaves ctx untouched, and every recording helper becomes a no-op.
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, NewRelicContextKey{}, app)
}

// StartTransaction starts a New Relic transaction for a single unit of work
// and attaches it to the returned context. The returned function ends the
// transaction. Without an application in ctx it returns ctx unchanged.
func StartTransaction(ctx context.Context, name string) (context.Context, func()) {
	app := fromContext(ctx)
	if app == nil {
		return ctx, func() {}
	}

	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}

func fromContext(ctx context.Context) *newrelic.Application {
	app, _ := ctx.Value(NewRelicContextKey{}).(*newrelic.Application)
	return app
}
