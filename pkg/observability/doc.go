/*
Package observability turns runtime lifecycle hooks into telemetry.

NewMetrics registers Prometheus collectors and returns the hooks that feed
them; LogHooks writes the same lifecycle events to a slog.Logger. Combine
fans a single hook set out to several consumers:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := observability.Combine(metrics.Hooks(), observability.LogHooks(logger))
	a := actor.New(logic, actor.WithHooks(hooks))
*/
package observability
