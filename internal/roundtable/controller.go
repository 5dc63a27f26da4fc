package roundtable

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/livestate"
	"github.com/kuangren777/llm-roundtable/internal/logging"
	"github.com/kuangren777/llm-roundtable/internal/stream"
)

const (
	defaultPollInterval = 2500 * time.Millisecond

	// doneSweepDelay is how long a finished progress entry lingers before
	// removal when no finalized message arrives to supersede it.
	doneSweepDelay = 2 * time.Second

	// requestTimeout bounds the snapshot fetches issued outside a caller
	// context (poll ticks, terminal reconciliation).
	requestTimeout = 10 * time.Second
)

// Sentinel errors reported to callers before any network round-trip.
var (
	ErrNoDiscussion    = errors.New("roundtable: no discussion selected")
	ErrRunning         = errors.New("roundtable: discussion is running; stop it first")
	ErrEmptyInput      = errors.New("roundtable: input is empty")
	ErrConfirmTruncate = errors.New("roundtable: editing deletes later messages; confirmation required")
	ErrMessageNotFound = errors.New("roundtable: message not found")
)

// Controller is the discussion state machine. It owns the client status,
// phase, finalized messages, per-agent streaming buffers, the attached run
// stream and the poll fallback for exactly one discussion at a time.
type Controller struct {
	client   *api.Client
	streamHC *http.Client
	bus      *event.Bus
	live     *livestate.Store
	log      *logging.Logger

	pollInterval time.Duration
	sweepDelay   time.Duration
	now          func() time.Time

	mu  sync.Mutex
	gen uint64 // bumped on every Select; stale callbacks check it and bail

	id           int
	status       Status
	errText      string
	topic        string
	title        string
	mode         api.DiscussionMode
	phase        string
	currentRound int
	maxRounds    int
	finalSummary string
	agents       []api.AgentConfig
	messages     []Message
	progress     map[string]livestate.Progress
	streaming    map[string]string

	list []api.Discussion

	handle    *stream.Handle
	attachSeq uint64 // bumped per attachment; stale stream callbacks check it
	pollStop  chan struct{}

	observer *ObserverSession
	sum      summaryState
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithPollInterval overrides the poll-fallback interval.
func WithPollInterval(d time.Duration) ControllerOption {
	return func(c *Controller) { c.pollInterval = d }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

// WithStreamClient sets the HTTP client used for streaming requests. It
// must not carry a timeout.
func WithStreamClient(hc *http.Client) ControllerOption {
	return func(c *Controller) { c.streamHC = hc }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithSummaryCooldowns overrides the summarizer cooldown windows.
func WithSummaryCooldowns(errorCooldown, runningCooldown time.Duration) ControllerOption {
	return func(c *Controller) {
		c.sum.errorCooldown = errorCooldown
		c.sum.runningCooldown = runningCooldown
	}
}

// NewController creates a controller. The live store carries in-flight
// streaming snapshots across discussion switches and restarts.
func NewController(client *api.Client, bus *event.Bus, live *livestate.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		client:       client,
		streamHC:     &http.Client{},
		bus:          bus,
		live:         live,
		log:          logging.NopLogger(),
		pollInterval: defaultPollInterval,
		sweepDelay:   doneSweepDelay,
		now:          time.Now,
		progress:     make(map[string]livestate.Progress),
		streaming:    make(map[string]string),
	}
	c.sum.errorCooldown = summaryErrorCooldown
	c.sum.runningCooldown = summaryRunningCooldown
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observer returns the observer sub-session for the selected discussion,
// or nil when none is selected.
func (c *Controller) Observer() *ObserverSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observer
}

// Discussions returns the cached discussion list.
func (c *Controller) Discussions() []api.Discussion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Discussion, len(c.list))
	copy(out, c.list)
	return out
}

// RefreshList re-fetches the discussion list for the sidebar.
func (c *Controller) RefreshList(ctx context.Context) error {
	list, err := c.client.ListDiscussions(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.list = list
	c.mu.Unlock()
	c.publish(event.ListChangedEvent{})
	return nil
}

// View returns a copied snapshot of the controller state for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		DiscussionID: c.id,
		Status:       c.status,
		Err:          c.errText,
		Topic:        c.topic,
		Title:        c.title,
		Mode:         c.mode,
		Phase:        c.phase,
		CurrentRound: c.currentRound,
		MaxRounds:    c.maxRounds,
		FinalSummary: c.finalSummary,
		Agents:       make([]api.AgentConfig, len(c.agents)),
		Messages:     make([]Message, len(c.messages)),
		Progress:     make(map[string]livestate.Progress, len(c.progress)),
		Streaming:    make(map[string]string, len(c.streaming)),
	}
	copy(v.Agents, c.agents)
	copy(v.Messages, c.messages)
	for k, p := range c.progress {
		v.Progress[k] = p
	}
	for k, s := range c.streaming {
		v.Streaming[k] = s
	}
	return v
}

// Select makes id the active discussion: cancels every handle belonging to
// the previous one, resets ephemeral state, loads the snapshot and observer
// history concurrently, and restores persisted live-state before deciding
// to poll. Late events from the previous discussion can never mutate the
// new one: the generation counter advances before anything else happens.
func (c *Controller) Select(ctx context.Context, id int) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	h := c.handle
	c.handle = nil
	c.stopPollLocked()
	oldObserver := c.observer
	c.observer = newObserverSession(c, id)
	sh := c.resetSummaryLocked()
	c.id = id
	c.status = StatusLoading
	c.errText = ""
	c.topic = ""
	c.title = ""
	c.mode = ""
	c.phase = ""
	c.currentRound = 0
	c.maxRounds = 0
	c.finalSummary = ""
	c.agents = nil
	c.messages = nil
	c.progress = make(map[string]livestate.Progress)
	c.streaming = make(map[string]string)
	c.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	if sh != nil {
		sh.Cancel()
	}
	if oldObserver != nil {
		oldObserver.detach()
	}
	c.publish(event.DiscussionStatusEvent{DiscussionID: id, Status: string(StatusLoading)})

	// The observer history is best-effort and must not delay or fail the
	// main load.
	var (
		detail  *api.DiscussionDetail
		loadErr error
		history []api.ObserverMessage
		wg      sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		detail, loadErr = c.client.GetDiscussion(ctx, id)
	}()
	go func() {
		defer wg.Done()
		history, _ = c.client.ObserverHistory(ctx, id)
	}()
	wg.Wait()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if loadErr != nil {
		c.status = StatusError
		c.errText = "failed to load discussion"
		c.mu.Unlock()
		c.publish(event.DiscussionStatusEvent{DiscussionID: id, Status: string(StatusError), Err: "failed to load discussion"})
		return loadErr
	}

	c.observer.setHistory(history)
	evs := c.applyDetailLocked(detail)

	if c.status == StatusRunning {
		// Restore the persisted in-flight view first so reattachment does
		// not flash a blank transcript, then fall back to polling until a
		// live stream is attached.
		if snap := c.live.Read(id); snap != nil {
			c.phase = snap.Phase
			if snap.Progress != nil {
				c.progress = snap.Progress
			}
			if snap.Streaming != nil {
				c.streaming = snap.Streaming
			}
		}
		c.startPollLocked(gen)
	}
	needsPrepare := c.status == StatusReady && len(c.agents) == 0
	c.mu.Unlock()

	c.publish(evs...)
	c.publish(event.ObserverEvent{DiscussionID: id})

	if needsPrepare {
		go c.prepareAgents(ctx, gen)
	}
	return nil
}

// applyDetailLocked applies a fresh REST snapshot wholesale and returns
// the notifications to publish once the lock is released.
func (c *Controller) applyDetailLocked(d *api.DiscussionDetail) []event.Event {
	c.topic = d.Topic
	c.title = d.Title
	c.mode = d.Mode
	c.currentRound = d.CurrentRound
	c.maxRounds = d.MaxRounds
	c.finalSummary = d.FinalSummary
	c.agents = d.Agents

	msgs := make([]Message, len(d.Messages))
	for i, m := range d.Messages {
		m.AgentRole = api.NormalizeRole(string(m.AgentRole))
		msgs[i] = Message{Message: m}
	}
	c.messages = msgs

	prev := c.status
	c.status = projectStatus(d.Status)
	if c.status == StatusError {
		c.errText = "discussion failed"
	} else {
		c.errText = ""
	}

	evs := []event.Event{event.TranscriptEvent{DiscussionID: c.id}}
	if c.status != prev {
		evs = append(evs, event.DiscussionStatusEvent{DiscussionID: c.id, Status: string(c.status), Err: c.errText})
	}
	return evs
}

// prepareAgents asks the server to generate the agent lineup for a freshly
// created discussion.
func (c *Controller) prepareAgents(ctx context.Context, gen uint64) {
	agents, err := c.client.PrepareAgents(ctx, c.currentID())
	if err != nil {
		c.log.Warn("prepare agents failed", "error", err)
		return
	}
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.agents = agents
	id := c.id
	c.mu.Unlock()
	c.publish(event.TranscriptEvent{DiscussionID: id})
}

func (c *Controller) currentID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Run attaches the live run stream, superseding any poll fallback.
func (c *Controller) Run(ctx context.Context) error {
	return c.runStream(ctx, false)
}

// RunSingleRound attaches the run stream for exactly one round; the server
// pauses for user input after the round finishes.
func (c *Controller) RunSingleRound(ctx context.Context) error {
	return c.runStream(ctx, true)
}

// EnsureAttached reattaches the run stream when the discussion is running
// but no stream handle is held, e.g. after returning to a discussion that
// kept running server-side. It never creates a duplicate attachment.
func (c *Controller) EnsureAttached(ctx context.Context) error {
	c.mu.Lock()
	need := c.id != 0 && c.status == StatusRunning && c.handle == nil
	c.mu.Unlock()
	if !need {
		return nil
	}
	return c.runStream(ctx, false)
}

func (c *Controller) runStream(ctx context.Context, singleRound bool) error {
	c.mu.Lock()
	if c.id == 0 {
		c.mu.Unlock()
		return ErrNoDiscussion
	}
	if c.handle != nil {
		// One attachment per discussion; the existing stream wins.
		c.mu.Unlock()
		return nil
	}
	c.stopPollLocked()
	gen := c.gen
	id := c.id
	c.status = StatusRunning
	c.errText = ""
	c.attachSeq++
	seq := c.attachSeq

	req := c.client.RunRequest(id, singleRound)
	// The handle is assigned while the lock is held, so no callback can
	// observe a half-attached state: callbacks lock this mutex first and
	// verify the attachment sequence.
	c.handle = stream.Open(ctx, c.streamHC, stream.Request(req), stream.Options{
		Terminal: []string{stream.EventComplete, stream.EventCycleComplete},
		OnEvent: func(ev stream.Event) {
			c.onRunEvent(gen, seq, ev)
		},
		OnError: func(err error) {
			c.onRunError(gen, seq, err)
		},
		OnComplete: func(ev stream.Event) {
			c.onRunComplete(gen, seq, ev)
		},
	})
	h := c.handle
	c.mu.Unlock()

	go c.watchStreamEnd(gen, seq, h)

	c.log.Info("run stream attached", "discussion_id", id, "single_round", singleRound)
	c.publish(event.DiscussionStatusEvent{DiscussionID: id, Status: string(StatusRunning)})
	return nil
}

// watchStreamEnd restores the poll fallback when the run stream's read
// loop exits without having delivered a terminal or error event, e.g. the
// server dropped the connection after a reset. The next poll re-fetch
// decides where the discussion actually stands.
func (c *Controller) watchStreamEnd(gen, seq uint64, h *stream.Handle) {
	<-h.Done()
	c.mu.Lock()
	if c.gen != gen || c.attachSeq != seq || c.handle != h {
		// A terminal or error callback already detached, or a newer
		// attachment owns the discussion.
		c.mu.Unlock()
		return
	}
	c.handle = nil
	id := c.id
	c.startPollLocked(gen)
	c.mu.Unlock()
	c.log.Warn("run stream ended without terminal event", "discussion_id", id)
}

// onRunEvent applies one streamed event. Events from a superseded
// discussion or a detached attachment are dropped.
func (c *Controller) onRunEvent(gen, seq uint64, ev stream.Event) {
	c.mu.Lock()
	if c.gen != gen || c.attachSeq != seq || c.handle == nil {
		c.mu.Unlock()
		return
	}

	var evs []event.Event
	switch ev.Type {
	case stream.EventPhaseChange:
		evs = c.applyPhaseChangeLocked(ev)
	case stream.EventMessage:
		evs = c.applyMessageLocked(ev)
	case stream.EventLLMProgress:
		evs = c.applyProgressLocked(gen, ev)
	default:
		// Unknown event types are a safe no-op for forward compatibility.
	}
	c.mu.Unlock()
	c.publish(evs...)
}

func (c *Controller) applyPhaseChangeLocked(ev stream.Event) []event.Event {
	c.phase = ev.Phase
	phase := ev.Phase
	c.live.Persist(c.id, livestate.Patch{Phase: &phase})

	// Prune streaming state down to agents whose role owns the new phase,
	// so stale progress from the previous phase cannot bleed through.
	owner, owned := phaseOwner(ev.Phase)
	roles := make(map[string]api.AgentRole, len(c.agents))
	for _, a := range c.agents {
		roles[a.Name] = a.Role
	}
	for name := range c.progress {
		if !owned || roles[name] != owner {
			delete(c.progress, name)
		}
	}
	for name := range c.streaming {
		if !owned || roles[name] != owner {
			delete(c.streaming, name)
		}
	}
	c.persistStreamingLocked()

	return []event.Event{
		event.PhaseChangedEvent{DiscussionID: c.id, Phase: ev.Phase},
		event.ProgressEvent{DiscussionID: c.id},
	}
}

func (c *Controller) applyMessageLocked(ev stream.Event) []event.Event {
	msg := Message{Message: api.Message{
		ID:          ev.MessageID,
		AgentName:   ev.AgentName,
		AgentRole:   api.NormalizeRole(ev.AgentRole),
		Content:     ev.Content,
		RoundNumber: ev.RoundNumber,
		CycleIndex:  ev.CycleIndex,
		Phase:       ev.Phase,
		CreatedAt:   parseEventTime(ev.CreatedAt, c.now),
	}}

	switch {
	case msg.ID > 0 && c.confirmExistingLocked(msg):
		// The server echoed a message we already hold (e.g. an optimistic
		// user insert): replaced in place, never duplicated.
	default:
		c.messages = append(c.messages, msg)
	}

	// The finalized message supersedes any in-flight progress.
	delete(c.progress, ev.AgentName)
	delete(c.streaming, ev.AgentName)
	c.persistStreamingLocked()

	return []event.Event{
		event.MessageAppendedEvent{DiscussionID: c.id, MessageID: msg.ID, AgentName: msg.AgentName},
		event.ProgressEvent{DiscussionID: c.id, AgentName: ev.AgentName},
	}
}

// confirmExistingLocked reconciles a streamed message against one already
// held locally, matching by server id first and falling back to a pending
// optimistic user insert with the same content. Reports whether a local
// message absorbed the event.
func (c *Controller) confirmExistingLocked(msg Message) bool {
	for i := range c.messages {
		if c.messages[i].ID == msg.ID && c.messages[i].Confirmed() {
			c.messages[i].Content = msg.Content
			return true
		}
	}
	if msg.AgentRole == api.RoleUser {
		for i := range c.messages {
			if c.messages[i].LocalID != "" && c.messages[i].Content == msg.Content {
				c.messages[i] = msg
				return true
			}
		}
	}
	return false
}

func (c *Controller) applyProgressLocked(gen uint64, ev stream.Event) []event.Event {
	phase := ev.Phase
	if phase == "" {
		if prev, ok := c.progress[ev.AgentName]; ok {
			phase = prev.Phase
		} else {
			phase = c.phase
		}
	}
	c.progress[ev.AgentName] = livestate.Progress{
		Chars:  ev.CharsReceived,
		Status: ev.LLMStatus,
		Phase:  phase,
	}
	// Progress events carry the cumulative text so far: replacement, not
	// append. Round summaries stream counts only.
	if ev.Content != "" && phase != PhaseRoundSummary {
		c.streaming[ev.AgentName] = ev.Content
	}
	c.persistStreamingLocked()

	if ev.LLMStatus == stream.LLMDone {
		name := ev.AgentName
		time.AfterFunc(c.sweepDelay, func() {
			c.sweepDoneProgress(gen, name)
		})
	}

	return []event.Event{event.ProgressEvent{DiscussionID: c.id, AgentName: ev.AgentName}}
}

// sweepDoneProgress removes a finished progress entry that no finalized
// message superseded in time.
func (c *Controller) sweepDoneProgress(gen uint64, name string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	p, ok := c.progress[name]
	if !ok || p.Status != stream.LLMDone {
		c.mu.Unlock()
		return
	}
	delete(c.progress, name)
	c.persistStreamingLocked()
	id := c.id
	c.mu.Unlock()
	c.publish(event.ProgressEvent{DiscussionID: id, AgentName: name})
}

func (c *Controller) persistStreamingLocked() {
	c.live.Persist(c.id, livestate.Patch{
		Progress:  c.progress,
		Streaming: c.streaming,
	})
}

func (c *Controller) onRunError(gen, seq uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.attachSeq != seq || c.handle == nil {
		c.mu.Unlock()
		return
	}
	id := c.id
	c.status = StatusError
	c.errText = err.Error()
	c.progress = make(map[string]livestate.Progress)
	c.streaming = make(map[string]string)
	h := c.handle
	c.handle = nil
	c.live.Remove(id)
	c.mu.Unlock()

	h.Cancel()
	c.log.Warn("run stream failed", "discussion_id", id, "error", err)
	c.publish(
		event.DiscussionStatusEvent{DiscussionID: id, Status: string(StatusError), Err: err.Error()},
		event.ProgressEvent{DiscussionID: id},
	)
}

// onRunComplete handles a terminal event: detach, drop persisted
// live-state, then reconcile against one authoritative REST snapshot.
func (c *Controller) onRunComplete(gen, seq uint64, ev stream.Event) {
	c.mu.Lock()
	if c.gen != gen || c.attachSeq != seq || c.handle == nil {
		c.mu.Unlock()
		return
	}
	id := c.id
	c.progress = make(map[string]livestate.Progress)
	c.streaming = make(map[string]string)
	c.handle = nil
	c.live.Remove(id)
	c.mu.Unlock()

	final := StatusWaitingInput
	if ev.Type == stream.EventComplete {
		final = StatusCompleted
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	detail, err := c.client.GetDiscussion(ctx, id)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	var evs []event.Event
	if err == nil {
		evs = c.applyDetailLocked(detail)
	}
	// The terminal event type decides the client status even when the
	// re-fetch disagrees transiently or fails.
	c.status = final
	c.errText = ""
	missingTitle := c.title == "" && final == StatusCompleted
	c.mu.Unlock()

	evs = append(evs,
		event.DiscussionStatusEvent{DiscussionID: id, Status: string(final)},
		event.ProgressEvent{DiscussionID: id},
	)
	c.publish(evs...)
	c.log.Info("run stream completed", "discussion_id", id, "terminal", ev.Type)

	listCtx, listCancel := context.WithTimeout(context.Background(), requestTimeout)
	defer listCancel()
	_ = c.RefreshList(listCtx)

	if missingTitle {
		go c.refreshTitle(gen, id)
	}
}

// refreshTitle asks the server to derive a title once a discussion has
// fully completed without one.
func (c *Controller) refreshTitle(gen uint64, id int) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	title, err := c.client.GenerateTitle(ctx, id)
	if err != nil || title == "" {
		return
	}
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.title = title
	c.mu.Unlock()
	c.publish(event.TranscriptEvent{DiscussionID: id}, event.ListChangedEvent{})
}

// Stop cancels the stream and cooperatively pauses the discussion
// server-side. Stopping is a pause, not an abandon: the discussion stays
// resumable, so the client lands in waiting_input regardless of how the
// server call fares.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.id == 0 {
		c.mu.Unlock()
		return ErrNoDiscussion
	}
	id := c.id
	h := c.handle
	c.handle = nil
	c.stopPollLocked()
	c.status = StatusWaitingInput
	c.errText = ""
	c.phase = ""
	c.progress = make(map[string]livestate.Progress)
	c.streaming = make(map[string]string)
	c.live.Remove(id)
	c.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	c.publish(
		event.DiscussionStatusEvent{DiscussionID: id, Status: string(StatusWaitingInput)},
		event.ProgressEvent{DiscussionID: id},
	)
	return c.client.StopDiscussion(ctx, id)
}

// Reset stops and wipes the discussion server-side, then returns the
// client to the ready state and re-triggers agent preparation.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.id == 0 {
		c.mu.Unlock()
		return ErrNoDiscussion
	}
	id := c.id
	gen := c.gen
	h := c.handle
	c.handle = nil
	c.stopPollLocked()
	c.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	if err := c.client.ResetDiscussion(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.messages = nil
	c.phase = ""
	c.errText = ""
	c.finalSummary = ""
	c.currentRound = 0
	c.progress = make(map[string]livestate.Progress)
	c.streaming = make(map[string]string)
	c.status = StatusReady
	c.live.Remove(id)
	sh := c.resetSummaryLocked()
	c.mu.Unlock()

	if sh != nil {
		sh.Cancel()
	}

	c.publish(
		event.DiscussionStatusEvent{DiscussionID: id, Status: string(StatusReady)},
		event.TranscriptEvent{DiscussionID: id},
		event.ProgressEvent{DiscussionID: id},
	)
	go c.prepareAgents(ctx, gen)
	return nil
}

// CompleteNow manually marks the discussion completed, ending the cyclic
// waiting-for-input loop, and reconciles against a fresh snapshot.
func (c *Controller) CompleteNow(ctx context.Context) error {
	c.mu.Lock()
	if c.id == 0 {
		c.mu.Unlock()
		return ErrNoDiscussion
	}
	id := c.id
	gen := c.gen
	c.mu.Unlock()

	if err := c.client.CompleteDiscussion(ctx, id); err != nil {
		return err
	}
	detail, err := c.client.GetDiscussion(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	evs := c.applyDetailLocked(detail)
	c.mu.Unlock()
	c.publish(evs...)
	return nil
}

// startPollLocked begins the timer-driven snapshot fallback. Polling and
// live streaming are mutually exclusive; runStream stops the poll before
// attaching.
func (c *Controller) startPollLocked(gen uint64) {
	if c.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	go c.pollLoop(gen, stop)
}

func (c *Controller) stopPollLocked() {
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
}

func (c *Controller) pollLoop(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.pollOnce(gen, stop) {
				return
			}
		}
	}
}

// pollOnce re-fetches the snapshot and applies it wholesale. Returns false
// once the poll should end: discussion switched, poll superseded, or the
// server left the running set.
func (c *Controller) pollOnce(gen uint64, stop chan struct{}) bool {
	c.mu.Lock()
	if c.gen != gen || c.pollStop != stop {
		c.mu.Unlock()
		return false
	}
	id := c.id
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	detail, err := c.client.GetDiscussion(ctx, id)
	if err != nil {
		// Transient fetch failures keep the poll alive.
		c.log.Debug("poll fetch failed", "discussion_id", id, "error", err)
		return true
	}

	c.mu.Lock()
	if c.gen != gen || c.pollStop != stop {
		c.mu.Unlock()
		return false
	}
	evs := c.applyDetailLocked(detail)
	keep := detail.Status.Running()
	if !keep {
		c.stopPollLocked()
		c.live.Remove(id)
	}
	c.mu.Unlock()
	c.publish(evs...)
	return keep
}

// publish dispatches notifications outside the state lock.
func (c *Controller) publish(evs ...event.Event) {
	if c.bus == nil {
		return
	}
	for _, ev := range evs {
		c.bus.Publish(ev)
	}
}

// parseEventTime decodes the created_at carried on streamed message
// events, falling back to the local clock when absent or unparseable.
func parseEventTime(s string, now func() time.Time) time.Time {
	if s == "" {
		return now()
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now()
}
