package notify

import (
	"context"

	"github.com/sw33tLie/rankbot/pkg/render"
)

// Reporter tells the operator about an error. Reporting is best effort.
type Reporter interface {
	Report(ctx context.Context, err error)
}

type NopReporter struct{}

func (NopReporter) Report(context.Context, error) {}

// OperatorReporter delivers error reports to a single operator recipient. A
// report that cannot be delivered is logged and dropped.
type OperatorReporter struct {
	Deliverer Deliverer
	Operator  Recipient
	Log       Logger
}

func (r *OperatorReporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	log := r.Log
	if log == nil {
		log = nopLogger{}
	}
	if r.Deliverer == nil || r.Operator.ID == "" {
		log.Errorf("%v", err)
		return
	}
	if derr := r.Deliverer.Deliver(ctx, r.Operator, render.Error(err)); derr != nil {
		log.Warnf("Could not report error to operator: %v (original error: %v)", derr, err)
	}
}
