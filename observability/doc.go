// Package observability provides a hook extension that records job
// lifecycle counters through OpenTelemetry.
//
// The extension complements the metrics middleware: the middleware
// times handler execution from inside the chain, while this extension
// counts lifecycle events the chain never sees — creation, retry
// scheduling, and cleanup.
//
//	eng, err := engine.Build(store,
//	    engine.WithExtension(observability.New()),
//	)
package observability
