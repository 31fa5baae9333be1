package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-tours/internal/payment"
)

// TypeReconcile is the asynq task type for booking reconciliation.
const TypeReconcile = "booking:reconcile"

// QueueName is the asynq queue reconcile tasks run on.
const QueueName = "bookings"

// NewReconcileTask builds a task whose id is the transaction id, so repeated
// enqueues of the same payment collapse into one task.
func NewReconcileTask(c Confirmation) (*asynq.Task, error) {
	if c.TransactionID == "" {
		return nil, ErrMissingTransaction
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode reconcile task: %w", err)
	}
	return asynq.NewTask(TypeReconcile, payload,
		asynq.TaskID(c.TransactionID),
		asynq.Queue(QueueName),
		asynq.MaxRetry(12),
		asynq.Retention(24*time.Hour),
	), nil
}

// ProcessTask implements asynq.Handler.
func (r *Reconciler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var c Confirmation
	if err := json.Unmarshal(t.Payload(), &c); err != nil {
		return fmt.Errorf("decode reconcile task: %v: %w", err, asynq.SkipRetry)
	}
	_, err := r.Reconcile(ctx, c)
	if errors.Is(err, ErrMissingCart) || errors.Is(err, ErrMissingTransaction) {
		r.Logger.Error().Err(err).Str("transaction_id", c.TransactionID).Str("alert", "page").
			Msg("confirmation cannot be reconciled")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher routes verified payment events to the reconciler, through the
// task queue when one is configured.
type Dispatcher struct {
	Tasks      Enqueuer
	Reconciler *Reconciler
	Logger     zerolog.Logger
}

// Dispatch implements payment.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, ev payment.Event) error {
	c := Confirmation{
		TransactionID: ev.TransactionID,
		AmountMinor:   ev.AmountMinor,
		Currency:      ev.Currency,
		Metadata:      ev.Metadata,
	}
	if d.Tasks == nil {
		if d.Reconciler == nil {
			return errors.New("booking: no reconciler configured")
		}
		_, err := d.Reconciler.Reconcile(ctx, c)
		if errors.Is(err, ErrMissingCart) || errors.Is(err, ErrMissingTransaction) {
			// redelivery cannot fix these; ack and page
			d.Logger.Error().Err(err).Str("transaction_id", c.TransactionID).Str("alert", "page").Msg("booking_unrecoverable")
			return nil
		}
		return err
	}
	task, err := NewReconcileTask(c)
	if err != nil {
		return err
	}
	info, err := d.Tasks.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		d.Logger.Debug().Str("transaction_id", c.TransactionID).Msg("reconcile task already queued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue reconcile: %w", err)
	}
	d.Logger.Info().Str("transaction_id", c.TransactionID).Str("task_id", info.ID).Msg("reconcile task queued")
	return nil
}

// NewServeMux registers the reconcile handler.
func NewServeMux(r *Reconciler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeReconcile, r)
	return mux
}
