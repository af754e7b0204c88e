// Package worker serves episode requests over NATS request/reply.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/podcast"
	"github.com/book-expert/podcast-service/internal/summary"
)

// DefaultHandleTimeout bounds the work done for one message.
const DefaultHandleTimeout = 300 * time.Second

// Default subjects.
const (
	DefaultGenerateSubject = "episode.generate"
	DefaultRateSubject     = "episode.rate"
	DefaultListSubject     = "episode.list"
	DefaultDeleteSubject   = "episode.delete"
)

var (
	// ErrConnectionMissing is returned when the worker has no NATS connection.
	ErrConnectionMissing = errors.New("nats connection cannot be nil")
	// ErrServiceMissing is returned when the worker has no episode service.
	ErrServiceMissing = errors.New("episode service cannot be nil")
)

const (
	logFmtSubscribed   = "Listening on %s"
	logFmtParseFailed  = "Failed to parse %s request: %v"
	logFmtJobFailed    = "%s request for workflow %s failed: %v"
	logFmtReplyFailed  = "Failed to reply on %s for workflow %s: %v"
	logFmtJobCompleted = "%s request for workflow %s completed in %s"
)

// EpisodeService is the workflow the worker exposes.
type EpisodeService interface {
	Generate(ctx context.Context, req podcast.Request) (podcast.Result, error)
	Rate(ctx context.Context, draftID string, stars int) (bool, error)
	List(ctx context.Context, opts core.ListOptions) ([]core.Episode, error)
	Delete(ctx context.Context, topic string, minutes float64) error
}

// Subjects names the subjects the worker listens on.
type Subjects struct {
	Generate string
	Rate     string
	List     string
	Delete   string
}

// DefaultSubjects returns the standard subject names.
func DefaultSubjects() Subjects {
	return Subjects{
		Generate: DefaultGenerateSubject,
		Rate:     DefaultRateSubject,
		List:     DefaultListSubject,
		Delete:   DefaultDeleteSubject,
	}
}

func (s Subjects) withDefaults() Subjects {
	d := DefaultSubjects()

	if s.Generate == "" {
		s.Generate = d.Generate
	}

	if s.Rate == "" {
		s.Rate = d.Rate
	}

	if s.List == "" {
		s.List = d.List
	}

	if s.Delete == "" {
		s.Delete = d.Delete
	}

	return s
}

// Config configures a NatsWorker.
type Config struct {
	Subjects Subjects
	// QueueGroup spreads requests over several workers when set.
	QueueGroup    string
	HandleTimeout time.Duration
}

// NatsWorker answers episode requests on NATS subjects.
type NatsWorker struct {
	natsConnection *nats.Conn
	service        EpisodeService
	cfg            Config
	log            *logger.Logger
	ready          chan struct{}
	readyOnce      sync.Once
}

// NewNatsWorker creates a worker for service.
func NewNatsWorker(natsConnection *nats.Conn, service EpisodeService, cfg Config, log *logger.Logger) (*NatsWorker, error) {
	if natsConnection == nil {
		return nil, ErrConnectionMissing
	}

	if service == nil {
		return nil, ErrServiceMissing
	}

	cfg.Subjects = cfg.Subjects.withDefaults()
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = DefaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		service:        service,
		cfg:            cfg,
		log:            log,
		ready:          make(chan struct{}),
	}, nil
}

// Ready is closed once every subscription is registered with the server.
func (w *NatsWorker) Ready() <-chan struct{} {
	return w.ready
}

// Run subscribes to every subject and serves until ctx is done, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	handlers := map[string]nats.MsgHandler{
		w.cfg.Subjects.Generate: w.handleGenerate,
		w.cfg.Subjects.Rate:     w.handleRate,
		w.cfg.Subjects.List:     w.handleList,
		w.cfg.Subjects.Delete:   w.handleDelete,
	}

	subs := make([]*nats.Subscription, 0, len(handlers))

	for subject, handler := range handlers {
		sub, err := w.subscribe(subject, handler)
		if err != nil {
			_ = drainAll(subs)

			return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
		}

		subs = append(subs, sub)
		w.log.Info(logFmtSubscribed, subject)
	}

	if err := w.natsConnection.Flush(); err != nil {
		_ = drainAll(subs)

		return fmt.Errorf("failed to flush subscriptions: %w", err)
	}

	w.readyOnce.Do(func() { close(w.ready) })

	<-ctx.Done()

	if err := drainAll(subs); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}

	return nil
}

func (w *NatsWorker) subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if w.cfg.QueueGroup != "" {
		return w.natsConnection.QueueSubscribe(subject, w.cfg.QueueGroup, handler)
	}

	return w.natsConnection.Subscribe(subject, handler)
}

func drainAll(subs []*nats.Subscription) error {
	var errs []error

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (w *NatsWorker) handleGenerate(msg *nats.Msg) {
	var event core.EpisodeRequestedEvent
	if !w.parse(msg, &event) {
		return
	}

	reply := core.EpisodeGeneratedEvent{Header: replyHeader(event.Header)}

	err := w.run(msg.Subject, event.Header, func(ctx context.Context) error {
		age, err := core.ParseAgeProfile(event.AgeProfile)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrInputRejected, err)
		}

		res, err := w.service.Generate(ctx, podcast.Request{
			Topic:      event.Topic,
			Minutes:    event.Minutes,
			AgeProfile: age,
			Voice:      event.Voice,
		})
		if err != nil {
			return err
		}

		reply.DraftID = res.DraftID
		reply.AudioKey = res.AudioKey
		reply.Script = res.Script
		reply.Cached = res.Cached
		reply.Warning = res.Warning

		return nil
	})
	reply.Error = errorText(err)
	reply.Reason = listenerReason(err)

	w.respond(msg, event.Header, &reply)
}

func (w *NatsWorker) handleRate(msg *nats.Msg) {
	var event core.EpisodeRatedEvent
	if !w.parse(msg, &event) {
		return
	}

	reply := core.EpisodeRatingResultEvent{Header: replyHeader(event.Header)}

	err := w.run(msg.Subject, event.Header, func(ctx context.Context) error {
		saved, err := w.service.Rate(ctx, event.DraftID, event.Stars)
		reply.Saved = saved

		return err
	})
	reply.Error = errorText(err)

	w.respond(msg, event.Header, &reply)
}

func (w *NatsWorker) handleList(msg *nats.Msg) {
	var event core.EpisodeListRequestEvent
	if !w.parse(msg, &event) {
		return
	}

	reply := core.EpisodeListResultEvent{Header: replyHeader(event.Header), Episodes: []core.Episode{}}

	err := w.run(msg.Subject, event.Header, func(ctx context.Context) error {
		eps, err := w.service.List(ctx, event.Options)
		if err != nil {
			return err
		}

		reply.Episodes = eps

		return nil
	})
	reply.Error = errorText(err)

	w.respond(msg, event.Header, &reply)
}

func (w *NatsWorker) handleDelete(msg *nats.Msg) {
	var event core.EpisodeDeleteRequestEvent
	if !w.parse(msg, &event) {
		return
	}

	reply := core.EpisodeDeleteResultEvent{Header: replyHeader(event.Header)}

	err := w.run(msg.Subject, event.Header, func(ctx context.Context) error {
		return w.service.Delete(ctx, event.Topic, event.Minutes)
	})
	reply.Deleted = err == nil
	reply.Error = errorText(err)

	w.respond(msg, event.Header, &reply)
}

// run executes job under the handle timeout and logs its outcome.
func (w *NatsWorker) run(subject string, header events.EventHeader, job func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.HandleTimeout)
	defer cancel()

	started := time.Now()

	if err := job(ctx); err != nil {
		w.log.Error(logFmtJobFailed, subject, header.WorkflowID, err)

		return err
	}

	w.log.Info(logFmtJobCompleted, subject, header.WorkflowID, time.Since(started).Round(time.Millisecond))

	return nil
}

func (w *NatsWorker) respond(msg *nats.Msg, header events.EventHeader, payload any) {
	if err := w.publishReply(msg, payload); err != nil {
		w.log.Error(logFmtReplyFailed, msg.Subject, header.WorkflowID, err)
	}
}

// listenerReason explains failures the listener can act on. Other failures
// get no reason.
func listenerReason(err error) string {
	switch {
	case errors.Is(err, core.ErrInputRejected),
		errors.Is(err, core.ErrTopicNotFound),
		errors.Is(err, summary.ErrSummaryUnavailable):
		return summary.Reason(err)
	default:
		return ""
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

func (w *NatsWorker) parse(msg *nats.Msg, out any) bool {
	if err := json.Unmarshal(msg.Data, out); err != nil {
		w.log.Error(logFmtParseFailed, msg.Subject, err)

		_ = w.publishReply(msg, map[string]string{"error": fmt.Sprintf("invalid request: %v", err)})

		return false
	}

	return true
}

func (w *NatsWorker) publishReply(msg *nats.Msg, payload any) error {
	if msg.Reply == "" {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	if err := msg.Respond(data); err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func replyHeader(req events.EventHeader) events.EventHeader {
	workflowID := req.WorkflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: workflowID,
		EventID:    uuid.NewString(),
		UserID:     req.UserID,
		TenantID:   req.TenantID,
	}
}
