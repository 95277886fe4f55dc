package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
)

const (
	systemGreeting    = "欢迎使用AI交易助手！我将帮助您进行加密货币交易。"
	assistantGreeting = "您好！我是您的专属交易助手。我可以帮您查询价格、分析市场趋势、执行交易操作。请问今天想要了解什么呢？"

	timeoutReply     = "响应超时，请稍后重试。"
	unavailableReply = "交易助手暂时不可用，请稍后重试。"
	failureReply     = "交易助手处理失败，请稍后重试。"
)

// Options tunes the pending phase of every session.
type Options struct {
	// Delay is the fixed wait before the responder is asked for a reply.
	Delay time.Duration
	// Timeout bounds a single responder call. Zero disables it.
	Timeout time.Duration
	// RetryAttempts is how many extra calls are made after ErrResponderUnavailable.
	RetryAttempts int
	// RetryBackoff is the base delay between retries, doubled per attempt.
	RetryBackoff time.Duration
	Now          func() time.Time
}

// DefaultOptions mirrors the simulated assistant of the dashboard.
func DefaultOptions() Options {
	return Options{
		Delay:         1500 * time.Millisecond,
		Timeout:       30 * time.Second,
		RetryAttempts: 2,
		RetryBackoff:  200 * time.Millisecond,
		Now:           time.Now,
	}
}

func (o Options) normalize() Options {
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 0
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// EventType names what a render Event reports.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventError    EventType = "error"
)

// Event is delivered to listeners after every state change.
type Event struct {
	Type     EventType
	Snapshot chat.Snapshot
	Err      error
}

// Listener receives render events. Listeners run synchronously in event
// order and must not call back into the session.
type Listener func(Event)

type turn struct {
	message    chat.Message
	generation uint64
}

// Session is one assistant conversation. It owns its transcript and resolves
// user turns one at a time, in submission order, on a dedicated worker.
type Session struct {
	id        string
	createdAt time.Time
	policy    ResponsePolicy
	opts      Options

	mu         sync.Mutex
	emitMu     sync.Mutex
	transcript []chat.Message
	draft      string
	queue      []turn
	inFlight   bool
	generation uint64
	turnCancel context.CancelFunc
	idle       chan struct{}
	lastErr    error
	closed     bool
	entropy    io.Reader
	listeners  map[int]Listener
	nextID     int

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
}

func newSession(id string, policy ResponsePolicy, opts Options) *Session {
	opts = opts.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	now := opts.Now().UTC()

	s := &Session{
		id:         id,
		createdAt:  now,
		policy:     policy,
		opts:       opts,
		transcript: make([]chat.Message, 0, 16),
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
		listeners:  make(map[int]Listener),
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.appendLocked(chat.RoleSystem, chat.KindText, systemGreeting)
	s.appendLocked(chat.RoleAssistant, chat.KindText, assistantGreeting)

	go s.run()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session started.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Submit appends a user message and schedules its reply. Blank text is
// rejected with ErrEmptyInput and leaves the session untouched.
func (s *Session) Submit(_ context.Context, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyInput
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return chat.Message{}, ErrSessionClosed
	}

	msg := s.appendLocked(chat.RoleUser, chat.KindText, text)
	s.draft = ""
	s.queue = append(s.queue, turn{message: msg, generation: s.generation})
	s.markPendingLocked()
	s.emitLocked(Event{Type: EventSnapshot})

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return msg, nil
}

// QuickAction injects a predefined phrase as if the user had typed it.
func (s *Session) QuickAction(ctx context.Context, label string) (chat.Message, error) {
	return s.Submit(ctx, label)
}

// SetDraft records the text currently in the input box.
func (s *Session) SetDraft(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.draft = text
	s.emitLocked(Event{Type: EventSnapshot})
	return nil
}

// Cancel aborts the in-flight turn and drops queued ones. No replies are
// appended for them.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	dropped := len(s.queue)
	if s.inFlight {
		dropped++
	}
	s.abortLocked()
	s.emitLocked(Event{Type: EventSnapshot})

	if dropped > 0 {
		log.Printf("[assistant] session=%s cancelled %d pending turn(s)", s.id, dropped)
	}
	return nil
}

// Close stops the worker and discards the session state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.abortLocked()
	s.listeners = make(map[int]Listener)
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

// Wait blocks until no turn is pending or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn for render events and returns its unsubscribe func.
func (s *Session) Subscribe(fn Listener) func() {
	_, unsubscribe := s.SubscribeWithSnapshot(fn)
	return unsubscribe
}

// SubscribeWithSnapshot registers fn and returns the state it starts from.
// fn only receives events for mutations made after that snapshot.
func (s *Session) SubscribeWithSnapshot(fn Listener) (chat.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return s.snapshotLocked(), func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current render state.
func (s *Session) Snapshot() chat.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Transcript returns a copy of the messages exchanged so far.
func (s *Session) Transcript() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.transcript...)
}

// Pending reports whether a reply is outstanding.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

// LastError returns the most recent responder failure, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Summary returns the list view of the session.
func (s *Session) Summary() chat.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.Summary{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		MessageCount: len(s.transcript),
		State:        s.stateLocked(),
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		t, ctx, req, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.ctx.Done():
				return
			}
		}
		body, err := s.respond(ctx, req)
		s.resolvePending(t, body, err)
	}
}

// next pops the head turn and marks it in flight.
func (s *Session) next() (turn, context.Context, Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.inFlight || len(s.queue) == 0 {
		return turn{}, nil, Request{}, false
	}

	t := s.queue[0]
	s.queue = s.queue[1:]
	s.inFlight = true

	ctx, cancel := context.WithCancel(s.ctx)
	s.turnCancel = cancel

	history := make([]chat.Message, 0, len(s.transcript))
	for _, msg := range s.transcript {
		history = append(history, msg)
		if msg.ID == t.message.ID {
			break
		}
	}

	return t, ctx, Request{SessionID: s.id, Prompt: t.message.Body, History: history}, true
}

// respond waits out the fixed delay and asks the policy, retrying
// unavailable responders with exponential backoff.
func (s *Session) respond(ctx context.Context, req Request) (string, error) {
	if err := sleep(ctx, s.opts.Delay); err != nil {
		return "", err
	}

	for attempt := 0; ; attempt++ {
		body, err := s.call(ctx, req)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, ErrResponderUnavailable) || attempt >= s.opts.RetryAttempts {
			return "", err
		}

		backoff := s.opts.RetryBackoff << attempt
		log.Printf("[assistant] session=%s responder unavailable (attempt %d/%d), retrying in %s: %v",
			s.id, attempt+1, s.opts.RetryAttempts+1, backoff, err)
		if err := sleep(ctx, backoff); err != nil {
			return "", err
		}
	}
}

// call runs one policy invocation bounded by the responder timeout, even
// when the policy ignores its context.
func (s *Session) call(ctx context.Context, req Request) (string, error) {
	callCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	type result struct {
		body string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := s.policy.Respond(callCtx, req)
		ch <- result{body: body, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrResponderTimeout, s.opts.Timeout)
		}
		return r.body, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w after %s", ErrResponderTimeout, s.opts.Timeout)
	}
}

// resolvePending settles the in-flight turn: it appends the reply (or an
// error notice) and returns the session to idle when nothing is queued.
func (s *Session) resolvePending(t turn, body string, err error) {
	s.mu.Lock()
	if s.closed || t.generation != s.generation {
		// Cancelled while in flight; abortLocked already reset the state.
		s.mu.Unlock()
		return
	}

	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
	s.inFlight = false

	if err == nil {
		s.appendLocked(chat.RoleAssistant, chat.KindText, body)
	} else {
		s.lastErr = err
		s.appendLocked(chat.RoleAssistant, chat.KindError, errorReply(err))
		log.Printf("[assistant] session=%s reply for message=%s failed: %v", s.id, t.message.ID, err)
	}

	if !s.pendingLocked() {
		s.markIdleLocked()
	}

	if err != nil {
		s.emitLocked(Event{Type: EventError, Err: err})
		return
	}
	s.emitLocked(Event{Type: EventSnapshot})
}

func errorReply(err error) string {
	switch {
	case errors.Is(err, ErrResponderTimeout):
		return timeoutReply
	case errors.Is(err, ErrResponderUnavailable):
		return unavailableReply
	default:
		return failureReply
	}
}

func (s *Session) abortLocked() {
	s.generation++
	s.queue = nil
	s.inFlight = false
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
	s.markIdleLocked()
}

func (s *Session) appendLocked(role chat.Role, kind chat.Kind, body string) chat.Message {
	now := s.opts.Now().UTC()
	msg := chat.Message{
		ID:        ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		SessionID: s.id,
		Role:      role,
		Kind:      kind,
		Body:      body,
		CreatedAt: now,
	}
	s.transcript = append(s.transcript, msg)
	return msg
}

func (s *Session) pendingLocked() bool {
	return s.inFlight || len(s.queue) > 0
}

func (s *Session) stateLocked() chat.State {
	if s.pendingLocked() {
		return chat.StateAwaitingResponse
	}
	return chat.StateIdle
}

func (s *Session) markPendingLocked() {
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
}

func (s *Session) markIdleLocked() {
	if s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

func (s *Session) snapshotLocked() chat.Snapshot {
	return chat.Snapshot{
		SessionID:  s.id,
		State:      s.stateLocked(),
		Pending:    s.pendingLocked(),
		Draft:      s.draft,
		Queued:     len(s.queue),
		Transcript: append([]chat.Message(nil), s.transcript...),
	}
}

// emitLocked is called with s.mu held and releases it. emitMu is taken
// before s.mu is dropped so listeners observe events in mutation order.
func (s *Session) emitLocked(evt Event) {
	evt.Snapshot = s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}

	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	for _, fn := range listeners {
		fn(evt)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
