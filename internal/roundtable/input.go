package roundtable

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/livestate"
)

// SubmitInput sends a user message into the discussion. The message shows
// up locally before the network round-trip so the UI never appears to eat
// a keystroke: a pending insert is reconciled to the server-confirmed
// identity on success and removed entirely on failure. When the discussion
// was not already running, a successful submit starts the run stream.
func (c *Controller) SubmitInput(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.id == 0 {
		c.mu.Unlock()
		return ErrNoDiscussion
	}
	id := c.id
	gen := c.gen
	wasRunning := c.status == StatusRunning
	localID := uuid.NewString()
	c.messages = append(c.messages, Message{
		LocalID: localID,
		Message: api.Message{
			AgentName:   "user",
			AgentRole:   api.RoleUser,
			Content:     text,
			RoundNumber: c.currentRound,
			CreatedAt:   c.now(),
		},
	})
	c.mu.Unlock()
	c.publish(event.TranscriptEvent{DiscussionID: id})

	resp, err := c.client.SubmitUserInput(ctx, id, text)

	c.mu.Lock()
	if c.gen != gen {
		// Discussion switched mid-flight; the optimistic insert is gone
		// with the old state.
		c.mu.Unlock()
		return err
	}
	if err != nil {
		// Rollback: the list must never show a message the server did not
		// accept.
		c.removePendingLocked(localID)
		c.mu.Unlock()
		c.publish(event.TranscriptEvent{DiscussionID: id})
		return err
	}
	// Reconcile by the local id, not by index: streamed messages may have
	// been appended concurrently.
	for i := range c.messages {
		if c.messages[i].LocalID == localID {
			c.messages[i].ID = resp.ID
			c.messages[i].Content = resp.Content
			c.messages[i].LocalID = ""
			break
		}
	}
	c.mu.Unlock()
	c.publish(event.TranscriptEvent{DiscussionID: id})

	if !wasRunning {
		return c.runStream(ctx, false)
	}
	return nil
}

func (c *Controller) removePendingLocked(localID string) {
	for i := range c.messages {
		if c.messages[i].LocalID == localID {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

// PendingTruncation reports how many messages would be deleted by editing
// the message with the given server id, so callers can ask for
// confirmation before an irreversible truncation.
func (c *Controller) PendingTruncation(messageID int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOfLocked(messageID)
	if idx < 0 {
		return 0, ErrMessageNotFound
	}
	return len(c.messages) - idx - 1, nil
}

func (c *Controller) indexOfLocked(messageID int) int {
	for i := range c.messages {
		if c.messages[i].ID == messageID && c.messages[i].Confirmed() {
			return i
		}
	}
	return -1
}

// EditMessage rewrites a past message and truncates everything after it,
// then resumes the run: a single bounded round when the discussion had
// already completed, a normal continuation otherwise. The discussion must
// not be running, and edits that would delete later messages require
// confirmed=true.
func (c *Controller) EditMessage(ctx context.Context, messageID int, content string, confirmed bool) error {
	c.mu.Lock()
	if c.id == 0 {
		c.mu.Unlock()
		return ErrNoDiscussion
	}
	if c.status == StatusRunning {
		c.mu.Unlock()
		return ErrRunning
	}
	idx := c.indexOfLocked(messageID)
	if idx < 0 {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	after := len(c.messages) - idx - 1
	if after > 0 && !confirmed {
		c.mu.Unlock()
		return ErrConfirmTruncate
	}
	id := c.id
	gen := c.gen
	wasCompleted := c.status == StatusCompleted
	c.mu.Unlock()

	if err := c.client.UpdateMessage(ctx, id, messageID, content); err != nil {
		return err
	}
	if after > 0 {
		if _, err := c.client.TruncateAfter(ctx, id, &messageID); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if idx := c.indexOfLocked(messageID); idx >= 0 {
		c.messages[idx].Content = content
		c.messages = c.messages[:idx+1]
	}
	c.clearEphemeralLocked(id)
	c.status = StatusWaitingInput
	c.mu.Unlock()

	c.publish(
		event.TranscriptEvent{DiscussionID: id},
		event.DiscussionStatusEvent{DiscussionID: id, Status: string(StatusWaitingInput)},
	)
	return c.runStream(ctx, wasCompleted)
}

// EditTopic rewrites the topic and restarts the discussion from nothing:
// the entire transcript is truncated, which requires confirmed=true when
// any messages exist.
func (c *Controller) EditTopic(ctx context.Context, topic string, confirmed bool) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.id == 0 {
		c.mu.Unlock()
		return ErrNoDiscussion
	}
	if c.status == StatusRunning {
		c.mu.Unlock()
		return ErrRunning
	}
	if len(c.messages) > 0 && !confirmed {
		c.mu.Unlock()
		return ErrConfirmTruncate
	}
	id := c.id
	gen := c.gen
	wasCompleted := c.status == StatusCompleted
	c.mu.Unlock()

	if err := c.client.UpdateTopic(ctx, id, topic); err != nil {
		return err
	}
	if _, err := c.client.TruncateAfter(ctx, id, nil); err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.topic = topic
	c.messages = nil
	c.clearEphemeralLocked(id)
	c.status = StatusWaitingInput
	c.mu.Unlock()

	c.publish(
		event.TranscriptEvent{DiscussionID: id},
		event.DiscussionStatusEvent{DiscussionID: id, Status: string(StatusWaitingInput)},
	)
	return c.runStream(ctx, wasCompleted)
}

// DeleteMessage removes one finalized message while the discussion is not
// running.
func (c *Controller) DeleteMessage(ctx context.Context, messageID int) error {
	c.mu.Lock()
	if c.id == 0 {
		c.mu.Unlock()
		return ErrNoDiscussion
	}
	if c.status == StatusRunning {
		c.mu.Unlock()
		return ErrRunning
	}
	id := c.id
	gen := c.gen
	c.mu.Unlock()

	if err := c.client.DeleteMessage(ctx, id, messageID); err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if idx := c.indexOfLocked(messageID); idx >= 0 {
		c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
	}
	c.mu.Unlock()
	c.publish(event.TranscriptEvent{DiscussionID: id})
	return nil
}

// clearEphemeralLocked wipes the streaming view and persisted live-state.
func (c *Controller) clearEphemeralLocked(id int) {
	c.phase = ""
	c.progress = make(map[string]livestate.Progress)
	c.streaming = make(map[string]string)
	c.live.Remove(id)
}
