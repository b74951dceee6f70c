// Package messaging keeps one workspace's chat stream in sync: sends are shown
// immediately and persisted in order, and a poll loop reconciles the local list
// with the store while the workspace is active.
package messaging

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/common/metrics"
	"partner-workspace/internal/facade"
	"partner-workspace/internal/models"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
)

const DefaultPollInterval = 3 * time.Second

// MessageSource is the store side of the chat stream.
type MessageSource interface {
	ListMessages(ctx context.Context, collaborationID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, msg facade.OutgoingMessage) (models.ChatMessage, error)
	MarkMessagesRead(ctx context.Context, collaborationID, readerID string) (int, error)
}

type entry struct {
	msg     models.ChatMessage
	seq     uint64
	pending bool
	// ackGen is the acknowledgement generation that confirmed this entry.
	ackGen uint64
}

type sendResult struct {
	msg models.ChatMessage
	err error
}

type sendRequest struct {
	msg  models.ChatMessage
	done chan sendResult
}

// session is one Activate..Deactivate span.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	outbox chan sendRequest
	// stopped is closed once the outbox has been drained for good.
	stopped chan struct{}
	wg      conc.WaitGroup
}

type Synchronizer struct {
	src             MessageSource
	collaborationID string
	interval        time.Duration
	log             logger.Logger
	newKey          func() string
	now             func() time.Time

	mu       sync.Mutex
	entries  []entry
	seq      uint64
	ackGen   uint64
	inFlight int
	draft    string
	run      *session
}

type Option func(*Synchronizer)

func WithPollInterval(d time.Duration) Option {
	return func(s *Synchronizer) { s.interval = d }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Synchronizer) { s.log = log }
}

func New(src MessageSource, collaborationID string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		src:             src,
		collaborationID: collaborationID,
		interval:        DefaultPollInterval,
		newKey:          uuid.NewString,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.ForComponent(s.log, "messaging").WithFields(map[string]interface{}{
		"collaborationId": collaborationID,
	})
	return s
}

// Activate loads the stream once and starts polling and the send outbox. A
// failed initial load leaves the list empty until the next successful poll.
func (s *Synchronizer) Activate(ctx context.Context) {
	s.mu.Lock()
	if s.run != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &session{
		ctx:     runCtx,
		cancel:  cancel,
		outbox:  make(chan sendRequest, 64),
		stopped: make(chan struct{}),
	}
	s.run = run
	s.mu.Unlock()

	metrics.ActiveWorkspaces.Inc()
	s.poll(ctx)

	run.wg.Go(func() { s.pollLoop(run) })
	run.wg.Go(func() { s.sendLoop(run) })
	s.log.Debug("Workspace chat activated", map[string]interface{}{"pollInterval": s.interval.String()})
}

// Deactivate stops polling and waits for the loops to exit. Sends still queued
// fail and their text returns to the draft.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	run := s.run
	s.run = nil
	s.mu.Unlock()
	if run == nil {
		return
	}

	run.cancel()
	run.wg.Wait()
	metrics.ActiveWorkspaces.Dec()
	s.log.Debug("Workspace chat deactivated", nil)
}

func (s *Synchronizer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Send shows the message at once and blocks until the store has accepted or
// refused it. Messages from one synchronizer are persisted in send order.
func (s *Synchronizer) Send(ctx context.Context, senderID, text string) (models.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return models.ChatMessage{}, errors.NewValidationError("message content is required")
	}

	s.mu.Lock()
	run := s.run
	if run == nil {
		s.mu.Unlock()
		return models.ChatMessage{}, errors.NewWorkspaceInactiveError(s.collaborationID)
	}
	provisional := models.ChatMessage{
		Meta:            models.Meta{CreatedAt: s.now()},
		CollaborationID: s.collaborationID,
		SenderID:        senderID,
		Content:         text,
		ClientKey:       s.newKey(),
	}
	s.seq++
	s.entries = append(s.entries, entry{msg: provisional, seq: s.seq, pending: true})
	s.inFlight++
	s.draft = ""
	s.mu.Unlock()

	req := sendRequest{msg: provisional, done: make(chan sendResult, 1)}
	select {
	case run.outbox <- req:
	case <-run.ctx.Done():
		s.resolve(provisional, models.ChatMessage{}, errors.NewWorkspaceInactiveError(s.collaborationID))
		return models.ChatMessage{}, errors.NewWorkspaceInactiveError(s.collaborationID)
	}

	select {
	case res := <-req.done:
		return res.msg, res.err
	case <-run.stopped:
		select {
		case res := <-req.done:
			return res.msg, res.err
		default:
		}
		// enqueued after the final drain
		err := errors.NewWorkspaceInactiveError(s.collaborationID)
		s.resolve(provisional, models.ChatMessage{}, err)
		return models.ChatMessage{}, err
	case <-ctx.Done():
		// the outbox still resolves the entry
		return models.ChatMessage{}, ctx.Err()
	}
}

func (s *Synchronizer) sendLoop(run *session) {
	defer close(run.stopped)
	for {
		select {
		case req := <-run.outbox:
			s.deliver(run.ctx, req)
		case <-run.ctx.Done():
			for {
				select {
				case req := <-run.outbox:
					err := errors.NewWorkspaceInactiveError(s.collaborationID)
					s.resolve(req.msg, models.ChatMessage{}, err)
					req.done <- sendResult{err: err}
				default:
					return
				}
			}
		}
	}
}

func (s *Synchronizer) deliver(ctx context.Context, req sendRequest) {
	stored, err := s.src.SendMessage(ctx, facade.OutgoingMessage{
		CollaborationID: req.msg.CollaborationID,
		SenderID:        req.msg.SenderID,
		Content:         req.msg.Content,
		ClientKey:       req.msg.ClientKey,
	})
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.NewMessageSendFailedError(err)
		}
		s.log.Warn("Message send failed", map[string]interface{}{
			"clientKey": req.msg.ClientKey,
			"error":     err.Error(),
		})
	}
	metrics.MessagesSent.WithLabelValues(metrics.Outcome(err)).Inc()
	s.resolve(req.msg, stored, err)
	req.done <- sendResult{msg: stored, err: err}
}

// resolve settles a provisional entry: replaced by the stored message on
// success, removed with its text restored to the draft on failure.
func (s *Synchronizer) resolve(provisional, stored models.ChatMessage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	idx := -1
	for i, e := range s.entries {
		if e.pending && e.msg.ClientKey == provisional.ClientKey {
			idx = i
			break
		}
	}

	if err != nil {
		if idx >= 0 {
			s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		}
		if s.draft == "" {
			s.draft = provisional.Content
		}
		return
	}

	s.ackGen++
	acked := entry{msg: stored, ackGen: s.ackGen}
	if idx >= 0 {
		acked.seq = s.entries[idx].seq
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	} else {
		s.seq++
		acked.seq = s.seq
	}
	// a poll may already have delivered the stored copy
	for i, e := range s.entries {
		if !e.pending && e.msg.ID == stored.ID {
			s.entries[i] = acked
			sortEntries(s.entries)
			return
		}
	}
	s.entries = append(s.entries, acked)
	sortEntries(s.entries)
}

func (s *Synchronizer) pollLoop(run *session) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.poll(run.ctx)
		case <-run.ctx.Done():
			return
		}
	}
}

// poll fetches the stream and applies it, except when the store returns an
// empty list while a send is in flight: that read predates the send, so the
// local list is kept.
func (s *Synchronizer) poll(ctx context.Context) {
	s.mu.Lock()
	startGen := s.ackGen
	s.mu.Unlock()

	fetched, err := s.src.ListMessages(ctx, s.collaborationID)
	if err != nil {
		metrics.MessagePolls.WithLabelValues("error").Inc()
		s.log.Warn("Message poll failed", map[string]interface{}{"error": err.Error()})
		return
	}
	s.apply(startGen, fetched)
}

// apply merges a fetch that started at acknowledgement generation startGen.
func (s *Synchronizer) apply(startGen uint64, fetched []models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(fetched) == 0 && s.inFlight > 0 {
		metrics.MessagePolls.WithLabelValues("guarded").Inc()
		return
	}

	seen := make(map[string]uint64, len(s.entries))
	for _, e := range s.entries {
		if !e.pending {
			seen[e.msg.ID] = e.seq
		}
	}
	inFetch := make(map[string]bool, len(fetched))
	next := make([]entry, 0, len(fetched)+s.inFlight)
	for _, m := range fetched {
		inFetch[m.ID] = true
		seq, ok := seen[m.ID]
		if !ok {
			s.seq++
			seq = s.seq
		}
		next = append(next, entry{msg: m, seq: seq})
	}
	for _, e := range s.entries {
		switch {
		case e.pending:
			next = append(next, e)
		case e.ackGen > startGen && !inFetch[e.msg.ID]:
			// acknowledged after this fetch started
			next = append(next, e)
		}
	}
	sortEntries(next)
	s.entries = next
	metrics.MessagePolls.WithLabelValues("applied").Inc()
}

// sortEntries orders stored messages by timestamp and keeps provisional ones
// last, in send order.
func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.pending != b.pending {
			return !a.pending
		}
		if a.pending {
			return a.seq < b.seq
		}
		if !a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.msg.CreatedAt.Before(b.msg.CreatedAt)
		}
		return a.seq < b.seq
	})
}

// Messages returns the rendered list: stored messages by timestamp, then
// provisional ones.
func (s *Synchronizer) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.msg
	}
	return out
}

// InFlight reports how many sends await the store.
func (s *Synchronizer) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Synchronizer) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Synchronizer) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// MarkRead flags every message readerID did not send as read, remotely and in
// the local list.
func (s *Synchronizer) MarkRead(ctx context.Context, readerID string) (int, error) {
	n, err := s.src.MarkMessagesRead(ctx, s.collaborationID, readerID)
	if err != nil {
		return n, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if !s.entries[i].pending && s.entries[i].msg.SenderID != readerID {
			s.entries[i].msg.Read = true
		}
	}
	return n, nil
}
