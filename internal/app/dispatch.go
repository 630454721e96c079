package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sms-scheduler/internal/domain"
	"sms-scheduler/internal/ports"

	"github.com/aniladanir/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	instrumentationName = "sms-scheduler/dispatch"
	runLockKey          = "sms-scheduler:dispatch:run"
)

// Dispatcher delivers due recipients through the SMS gateway.
//
// Every recipient is attempted at most once: it is claimed with a
// conditional MarkSent before the gateway is called, and a failed attempt
// stays sent with its error recorded. Callers that want a retry must
// schedule a new recipient.
type Dispatcher struct {
	repo     ports.MessageRepository
	gateway  ports.SMSGateway
	reporter ports.ReportPublisher
	locker   ports.RunLocker
	log      *slog.Logger

	concurrency    int
	sendTimeout    time.Duration
	lockTTL        time.Duration
	recordAttempts int
	recordRetrier  *retry.Retrier

	tracer trace.Tracer
	sends  metric.Int64Counter
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency bounds the number of gateway calls in flight per run.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithSendTimeout bounds every gateway call. A timed-out call is a failure.
func WithSendTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// WithReportPublisher publishes every run summary to the operator channel.
func WithReportPublisher(p ports.ReportPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.reporter = p }
}

// WithRunLocker makes overlapping runs return early while another holds the lock.
func WithRunLocker(l ports.RunLocker, ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.locker = l
		if ttl > 0 {
			d.lockTTL = ttl
		}
	}
}

// WithRecordAttempts sets how many times an outcome write is tried.
func WithRecordAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.recordAttempts = n
		}
	}
}

// NewDispatcher wires the dispatcher with its dependencies.
func NewDispatcher(
	repo ports.MessageRepository,
	gateway ports.SMSGateway,
	log *slog.Logger,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	d := &Dispatcher{
		repo:           repo,
		gateway:        gateway,
		log:            log,
		concurrency:    8,
		sendTimeout:    10 * time.Second,
		lockTTL:        5 * time.Minute,
		recordAttempts: 3,
		tracer:         otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(d)
	}

	retrier, err := retry.New(retry.WithMaxAttemps(d.recordAttempts))
	if err != nil {
		return nil, fmt.Errorf("init outcome retrier: %w", err)
	}
	d.recordRetrier = retrier

	sends, err := otel.Meter(instrumentationName).Int64Counter(
		"sms.dispatch.sends",
		metric.WithDescription("Dispatch attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("init sends counter: %w", err)
	}
	d.sends = sends

	return d, nil
}

// RunOnce selects every recipient due at now, attempts delivery for each and
// returns the aggregated summary.
//
// It returns an error only when the due recipients cannot be read or when ctx
// is cancelled mid-run; in the latter case the partial summary is returned too
// and recipients that were not started stay pending.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) (domain.Summary, error) {
	summary := domain.Summary{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Results:   []domain.RecipientResult{},
	}
	log := d.log.With("run_id", summary.RunID)

	ctx, span := d.tracer.Start(ctx, "dispatch.run", trace.WithAttributes(
		attribute.String("run_id", summary.RunID.String()),
	))
	defer span.End()

	if d.locker != nil {
		release, ok, err := d.locker.TryLock(ctx, runLockKey, d.lockTTL)
		switch {
		case err != nil:
			log.Warn("run lock unavailable, continuing without it", "err", err)
		case !ok:
			summary.LockContended = true
			summary.FinishedAt = time.Now().UTC()
			log.Info("another dispatch run holds the lock, skipping")
			return summary, nil
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("release run lock", "err", err)
				}
			}()
		}
	}

	due, err := d.repo.FindDueRecipients(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "find due recipients")
		log.Error("find due recipients", "err", err)
		return summary, fmt.Errorf("find due recipients: %w", err)
	}
	due = uniqueRecipients(due)
	span.SetAttributes(attribute.Int("due_count", len(due)))

	var (
		mu          sync.Mutex
		interrupted error
	)
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for _, item := range due {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			interrupted = err
			mu.Unlock()
			break
		}
		// g.Go blocks at the limit, so ctx may be cancelled by the time it starts.
		g.Go(func() error {
			res, state := d.dispatchOne(ctx, log, item)

			mu.Lock()
			defer mu.Unlock()
			switch state {
			case notStarted:
				interrupted = ctx.Err()
			case alreadyHandled:
				summary.Skipped++
			default:
				summary.Add(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = time.Now().UTC()
	span.SetAttributes(
		attribute.Int("succeeded", summary.Succeeded),
		attribute.Int("failed", summary.Failed),
		attribute.Int("skipped", summary.Skipped),
	)

	if summary.ProcessedCount > 0 || summary.Skipped > 0 {
		log.Info("dispatch run finished",
			"processed", summary.ProcessedCount,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"duration", summary.FinishedAt.Sub(summary.StartedAt),
		)
		d.publishReport(ctx, log, summary)
	}

	if interrupted != nil {
		span.SetStatus(codes.Error, "interrupted")
		log.Warn("dispatch run interrupted, remaining recipients stay pending", "err", interrupted)
		return summary, fmt.Errorf("dispatch run interrupted: %w", interrupted)
	}
	return summary, nil
}

type dispatchState int

const (
	dispatched dispatchState = iota
	alreadyHandled
	notStarted
)

// dispatchOne claims, sends and records a single recipient. Once the claim
// succeeds the send and the outcome write run to completion even if ctx is
// cancelled; before it, a cancelled ctx leaves the recipient pending.
func (d *Dispatcher) dispatchOne(ctx context.Context, runLog *slog.Logger, item domain.DueRecipient) (res domain.RecipientResult, state dispatchState) {
	rcpt := item.Recipient
	log := runLog.With("recipient_id", rcpt.ID, "message_id", rcpt.MessageID)
	res = domain.RecipientResult{
		RecipientID: rcpt.ID,
		MessageID:   rcpt.MessageID,
		Phone:       rcpt.Phone,
	}

	if ctx.Err() != nil {
		return res, notStarted
	}

	if rcpt.Sent {
		log.Warn("selected recipient is already sent, skipping")
		d.count(ctx, "skipped")
		return res, alreadyHandled
	}

	if err := d.repo.MarkSent(ctx, rcpt.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, domain.ErrAlreadySent) || errors.Is(err, domain.ErrRecipientNotFound) {
			log.Info("recipient already handled, skipping", "reason", err)
			d.count(ctx, "skipped")
			return res, alreadyHandled
		}
		if ctx.Err() != nil {
			return res, notStarted
		}
		// Nothing was sent; the recipient is still pending for the next run.
		log.Error("claim recipient", "err", err)
		res.Error = "claim failed: " + err.Error()
		d.count(ctx, "claim_failed")
		return res, dispatched
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.send", trace.WithAttributes(
		attribute.String("recipient_id", rcpt.ID.String()),
	))
	defer span.End()

	// Claimed recipients are never retried, so the attempt must really happen.
	outcome := d.send(context.WithoutCancel(ctx), rcpt.Phone, item.Content)
	res.Success = outcome.Success
	res.ProviderMessageID = outcome.ProviderMessageID
	res.Error = outcome.Error
	if !outcome.Success {
		span.SetStatus(codes.Error, outcome.Error)
	}

	// A cancelled run still records what it already sent.
	if err := d.record(context.WithoutCancel(ctx), log, rcpt.ID, outcome); err != nil {
		res.Reconcile = true
		span.RecordError(err)
		if outcome.Success {
			log.Error("delivered but outcome not recorded",
				"provider_message_id", outcome.ProviderMessageID,
				"reconcile", true,
				"err", err,
			)
		} else {
			log.Error("failure outcome not recorded",
				"send_error", outcome.Error,
				"reconcile", true,
				"err", err,
			)
		}
		d.count(ctx, "unrecorded")
	}

	if outcome.Success {
		log.Info("message sent", "provider_message_id", outcome.ProviderMessageID)
		d.count(ctx, "sent")
	} else {
		log.Warn("message send failed", "send_error", outcome.Error)
		d.count(ctx, "failed")
	}
	return res, dispatched
}

// send calls the gateway under the per-call timeout and folds every kind of
// failure into the outcome.
func (d *Dispatcher) send(ctx context.Context, phone, body string) (outcome domain.Outcome) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Outcome{Error: fmt.Sprintf("gateway panic: %v", r)}
		}
		outcome.CompletedAt = time.Now().UTC()
	}()

	result, err := d.gateway.Send(sendCtx, phone, body)
	switch {
	case err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded):
		return domain.Outcome{Error: fmt.Sprintf("gateway timeout after %s", d.sendTimeout)}
	case err != nil:
		return domain.Outcome{Error: "gateway: " + err.Error()}
	case !result.Success:
		msg := result.Error
		if msg == "" {
			msg = "gateway rejected message"
		}
		return domain.Outcome{Error: msg, ProviderMessageID: result.ProviderMessageID}
	default:
		return domain.Outcome{Success: true, ProviderMessageID: result.ProviderMessageID}
	}
}

// record writes the outcome, retrying transient store errors.
func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, id uuid.UUID, outcome domain.Outcome) error {
	var lastErr error
	attemptFunc := func(attempt int) (terminate bool) {
		lastErr = d.repo.RecordOutcome(ctx, id, outcome)
		if lastErr == nil || errors.Is(lastErr, domain.ErrRecipientNotFound) {
			return true
		}
		log.Warn("record outcome failed", "attempt", attempt, "err", lastErr)
		return false
	}

	<-d.recordRetrier.Retry(ctx, attemptFunc, true)
	if lastErr != nil {
		return fmt.Errorf("record outcome: %w", lastErr)
	}
	return nil
}

func (d *Dispatcher) publishReport(ctx context.Context, log *slog.Logger, summary domain.Summary) {
	if d.reporter == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.reporter.PublishReport(pubCtx, summary); err != nil {
		log.Error("publish dispatch report", "err", err)
	}
}

func (d *Dispatcher) count(ctx context.Context, outcome string) {
	d.sends.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// uniqueRecipients drops repeated recipient ids, keeping the first occurrence.
func uniqueRecipients(items []domain.DueRecipient) []domain.DueRecipient {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		if _, ok := seen[it.Recipient.ID]; ok {
			continue
		}
		seen[it.Recipient.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}
