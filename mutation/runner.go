// Package mutation runs one confirmed operation end to end: send, reconcile
// the cache, then notify. The success toast is only emitted once the cache
// write is visible to readers.
package mutation

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/entcache"
	"github.com/unkn0wn-root/entcache/gateway"
	"github.com/unkn0wn-root/entcache/notify"
	"github.com/unkn0wn-root/entcache/reconcile"
)

// FailureKey is the toast key used when an operation fails.
const FailureKey = "error_mutation_failed"

// Operation describes one named mutation and its side effects.
type Operation struct {
	Name     string // GraphQL operation name
	Field    string // root field holding the payload; empty => derived from Document
	Document string
	Refetch  []string

	SuccessKey    string
	SuccessParams func(payload map[string]any) map[string]any
}

type Sender interface {
	Send(ctx context.Context, req gateway.Request) (gateway.Result, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, mutation string, payload map[string]any) (reconcile.Report, error)
}

type Runner struct {
	send     Sender
	rec      Reconciler
	notifier notify.Notifier
	log      entcache.Logger
}

func NewRunner(send Sender, rec Reconciler, n notify.Notifier, log entcache.Logger) *Runner {
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = entcache.NopLogger{}
	}
	return &Runner{send: send, rec: rec, notifier: n, log: log}
}

// Outcome is what a successful run produced. Payload is nil when the
// server answered null for the root field.
type Outcome struct {
	RequestID string
	Payload   map[string]any
	Report    reconcile.Report
}

// Run sends op with vars. On failure a danger toast is emitted and nothing
// is reconciled. On success the payload is reconciled before the success
// toast; a reconcile failure is logged and the run still succeeds.
func (r *Runner) Run(ctx context.Context, op Operation, vars map[string]any) (Outcome, error) {
	field := op.Field
	if field == "" {
		f, err := gateway.RootField(op.Document, op.Name)
		if err != nil {
			return Outcome{}, err
		}
		field = f
	}

	res, err := r.send.Send(ctx, gateway.Request{
		Operation: op.Name,
		Document:  op.Document,
		Variables: vars,
		Refetch:   op.Refetch,
	})
	if err != nil {
		r.notifier.Notify(failureToast(err))
		return Outcome{}, err
	}

	out := Outcome{RequestID: res.RequestID, Payload: res.Payload(field)}
	if out.Payload == nil {
		r.log.Warn("operation returned no payload", entcache.Fields{"op": op.Name, "field": field, "request_id": res.RequestID})
		return out, nil
	}

	if r.rec != nil {
		rep, err := r.rec.Reconcile(ctx, field, out.Payload)
		out.Report = rep
		if err != nil {
			// refetch lists and the next direct read correct what was missed
			r.log.Error("reconcile failed", entcache.Fields{"op": op.Name, "field": field, "err": err})
		}
	}

	if op.SuccessKey != "" {
		var params map[string]any
		if op.SuccessParams != nil {
			params = op.SuccessParams(out.Payload)
		}
		r.notifier.Notify(notify.New(notify.SeveritySuccess, op.SuccessKey, params))
	}
	return out, nil
}

func failureToast(err error) notify.Toast {
	params := map[string]any{"code": "network_error", "message": err.Error()}
	var se *gateway.ServerError
	if errors.As(err, &se) {
		params["code"] = se.Code
		params["message"] = se.Message
	}
	return notify.New(notify.SeverityDanger, FailureKey, params)
}
