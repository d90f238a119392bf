package services

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "workflow-engine/backend/internal/services"

var noopMeter = noop.NewMeterProvider().Meter(instrumentationName)

type instruments struct {
	endEdges        metric.Int64Counter
	storeFailures   metric.Int64Counter
	persistFailures metric.Int64Counter
	merges          metric.Int64Counter
}

// newInstruments registers the engine counters on the global meter provider.
// Registration errors fall back to no-op counters.
func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	return &instruments{
		endEdges: counter(meter, "workflow.navigator.end_edges",
			"Navigations that found no matching edge and resolved to the end edge"),
		storeFailures: counter(meter, "workflow.store.failures",
			"Process log and TTable operations that failed against the store"),
		persistFailures: counter(meter, "workflow.ttable.persist_failures",
			"Asynchronous TTable writes that failed or were dropped"),
		merges: counter(meter, "workflow.ttable.merges",
			"Decision-flow results merged into TTables"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		c, _ = noopMeter.Int64Counter(name)
	}
	return c
}
