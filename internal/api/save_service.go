package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"satchel/internal/broadcast"
	"satchel/internal/config"
	"satchel/internal/dedup"
	"satchel/internal/delivery"
	"satchel/internal/logging"
	"satchel/internal/queue"
)

// SaveService accepts captures and exposes queue state to control surfaces.
type SaveService struct {
	store     *queue.Store
	filter    *dedup.Filter
	worker    *delivery.Worker
	hub       *broadcast.Hub
	logger    *slog.Logger
	minLength int
	maxLength int
}

// NewSaveService wires the capture pipeline together.
func NewSaveService(cfg *config.Config, store *queue.Store, filter *dedup.Filter, worker *delivery.Worker, hub *broadcast.Hub, logger *slog.Logger) *SaveService {
	return &SaveService{
		store:     store,
		filter:    filter,
		worker:    worker,
		hub:       hub,
		logger:    logging.WithComponent(logger, "save-service"),
		minLength: cfg.Capture.MinLength,
		maxLength: cfg.Capture.MaxLength,
	}
}

// Submit validates a capture, enqueues it, and triggers delivery. Validation
// and capacity errors are synchronous; once Submit returns the entry, the
// producer learns the outcome through the broadcast hub.
func (s *SaveService) Submit(ctx context.Context, req SubmitRequest) (*queue.Entry, error) {
	text := strings.TrimSpace(req.Text)
	length := utf8.RuneCountInString(text)
	if length < s.minLength {
		return nil, &ValidationError{
			Reason: ReasonTooShort,
			Detail: fmt.Sprintf("%d characters, minimum is %d", length, s.minLength),
		}
	}
	if length > s.maxLength {
		return nil, &ValidationError{
			Reason: ReasonTooLong,
			Detail: fmt.Sprintf("%d characters, maximum is %d", length, s.maxLength),
		}
	}
	if !s.filter.CheckAndRecord(text, req.SourceURL) {
		s.logger.Debug("duplicate capture rejected",
			logging.String("source_url", req.SourceURL))
		return nil, &ValidationError{Reason: ReasonDuplicate}
	}

	entry, err := s.store.Enqueue(ctx, queue.Payload{
		Text:         text,
		SourceURL:    strings.TrimSpace(req.SourceURL),
		SourceTitle:  strings.TrimSpace(req.SourceTitle),
		SourceDomain: strings.TrimSpace(req.SourceDomain),
		Context:      req.Context,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("capture accepted",
		logging.String(logging.FieldQueueID, entry.ID),
		logging.Int("length", length),
		logging.String("source_url", entry.Payload.SourceURL))

	s.worker.Trigger(entry)
	s.publishSummary(ctx)
	return entry, nil
}

// Summary returns the queue snapshot control surfaces poll on attach.
func (s *SaveService) Summary(ctx context.Context) (broadcast.Summary, error) {
	return delivery.Snapshot(ctx, s.store)
}

// List returns queue entries, optionally filtered by status.
func (s *SaveService) List(ctx context.Context, statuses ...queue.Status) ([]EntryView, error) {
	entries, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromEntries(entries), nil
}

// Get returns a single entry view.
func (s *SaveService) Get(ctx context.Context, id string) (*EntryView, error) {
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrNotFound
	}
	view := FromEntry(entry)
	return &view, nil
}

// Retry returns a failed entry to pending with a fresh retry budget and
// triggers an immediate attempt.
func (s *SaveService) Retry(ctx context.Context, id string) error {
	ok, err := s.store.ResetForRetry(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrNotFound
	}

	s.logger.Info("manual retry requested", logging.String(logging.FieldQueueID, id))
	s.worker.Trigger(entry)
	s.publishSummary(ctx)
	return nil
}

// Discard removes an entry regardless of state and suppresses any pending
// retry timer for it.
func (s *SaveService) Discard(ctx context.Context, id string) error {
	removed, err := s.worker.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	s.logger.Info("capture discarded", logging.String(logging.FieldQueueID, id))
	return nil
}

// Stats returns entry counts grouped by status.
func (s *SaveService) Stats(ctx context.Context) (map[queue.Status]int, error) {
	return s.store.Stats(ctx)
}

func (s *SaveService) publishSummary(ctx context.Context) {
	summary, err := delivery.Snapshot(ctx, s.store)
	if err != nil {
		s.logger.Debug("summary snapshot unavailable", logging.Error(err))
		return
	}
	s.hub.PublishSummary(summary)
}
