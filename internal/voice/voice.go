// Package voice is the entry point the UI talks to. It owns the push-to-talk
// manager and the conversation loop and keeps them off the microphone at the
// same time.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yok-tottii/banana4u-voice/internal/conversation"
	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/recording"
)

// Mode is the capture mode currently holding the microphone.
type Mode string

const (
	ModeNone         Mode = "none"
	ModePushToTalk   Mode = events.ModePushToTalk
	ModeConversation Mode = events.ModeConversation
)

// State is a snapshot for status displays.
type State struct {
	Mode       Mode   `json:"mode"`
	Phase      string `json:"phase"`
	PushToTalk string `json:"push_to_talk"`
	SessionID  string `json:"session_id,omitempty"`
}

// Core serializes mode changes between push-to-talk and conversational mode.
type Core struct {
	ptt  *recording.Manager
	loop *conversation.Controller
	bus  *events.Bus
	log  zerolog.Logger

	mu sync.Mutex
}

// New wires a core around an existing manager, controller and bus. The bus
// must be the one both collaborators publish to.
func New(ptt *recording.Manager, loop *conversation.Controller, bus *events.Bus, log zerolog.Logger) *Core {
	return &Core{
		ptt:  ptt,
		loop: loop,
		bus:  bus,
		log:  log.With().Str("component", "voice").Logger(),
	}
}

// StartPushToTalk opens the microphone for a push-to-talk recording.
func (c *Core) StartPushToTalk(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop.Active() {
		return fmt.Errorf("%w: conversational mode is active", recording.ErrBusy)
	}
	if err := c.ptt.Start(ctx); err != nil {
		if !errors.Is(err, recording.ErrBusy) {
			c.publishError(events.ModePushToTalk, err)
		}
		return err
	}
	return nil
}

// StopPushToTalk ends the recording and returns its raw transcript.
func (c *Core) StopPushToTalk(ctx context.Context) (string, error) {
	text, err := c.ptt.Stop(ctx)
	if err != nil && !errors.Is(err, recording.ErrNotRecording) && ctx.Err() == nil {
		c.publishError(events.ModePushToTalk, err)
	}
	return text, err
}

// CancelPushToTalk drops a recording in progress.
func (c *Core) CancelPushToTalk() {
	c.ptt.Cancel()
}

// StartConversationalMode turns the hands-free loop on.
func (c *Core) StartConversationalMode(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startConversation(ctx)
}

func (c *Core) startConversation(ctx context.Context) error {
	if s := c.ptt.GetState(); s != recording.Idle {
		return fmt.Errorf("%w: push-to-talk is %s", recording.ErrBusy, s)
	}
	if err := c.loop.Start(ctx); err != nil {
		return err
	}
	c.log.Info().Str("session", c.loop.SessionID()).Msg("conversational mode on")
	return nil
}

// StopConversationalMode turns the loop off. It returns once the microphone
// is released and playback is unmuted; push-to-talk cannot start before then.
func (c *Core) StopConversationalMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop.Stop()
}

// ToggleConversationalMode flips the loop and reports whether it is now on.
func (c *Core) ToggleConversationalMode(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop.Active() {
		c.loop.Stop()
		return false, nil
	}
	if err := c.startConversation(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// State returns the current mode and phase.
func (c *Core) State() State {
	s := State{
		Mode:       ModeNone,
		Phase:      c.loop.Phase().String(),
		PushToTalk: c.ptt.GetState().String(),
	}
	switch {
	case c.loop.Active():
		s.Mode = ModeConversation
		s.SessionID = c.loop.SessionID()
	case c.ptt.GetState() != recording.Idle:
		s.Mode = ModePushToTalk
	}
	return s
}

// Subscribe returns a channel of notifications and a function that ends the
// subscription. buffer <= 0 uses events.DefaultBuffer.
func (c *Core) Subscribe(buffer int) (<-chan events.Event, func()) {
	if buffer <= 0 {
		buffer = events.DefaultBuffer
	}
	return c.bus.Subscribe(buffer)
}

// Close stops whatever mode is running.
func (c *Core) Close() {
	c.ptt.Cancel()
	c.loop.Stop()
}

func (c *Core) publishError(mode string, err error) {
	code, message := conversation.Describe(err)
	c.log.Warn().Err(err).Str("mode", mode).Str("code", code).Msg("voice error")
	c.bus.Publish(events.Event{
		Type:    events.Error,
		Mode:    mode,
		Code:    code,
		Message: message,
		Err:     err,
	})
}
