// Package command implements the command dispatcher (C6): encoding and
// tracking server-to-device commands, and matching their acknowledgments
// back from the device's reply stream.
package command

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gt06gateway/internal/bus"
	"gt06gateway/internal/model"
	"gt06gateway/internal/protocol/gt06"
)

// SessionLookup is the subset of the session registry the dispatcher
// needs: resolving an IMEI to its current connection handle.
type SessionLookup interface {
	ByIMEI(imei string) (*model.DeviceSession, bool)
}

// ConnectionWriter hands an encoded frame to a connection's serialized
// write queue (C5). It returns an error if the connection is gone.
type ConnectionWriter interface {
	Write(handle uint64, data []byte) error
}

// Dispatcher is the command dispatcher. One Dispatcher instance is shared
// process-wide (no global singletons beyond the registry,
// the command map, and the serial counter — this type owns the latter
// two).
type Dispatcher struct {
	sessions SessionLookup
	writer   ConnectionWriter
	serial   gt06.SerialCounter
	publish  bus.Publisher

	mu     sync.Mutex
	byID   map[string]*model.PendingCommand
	byIMEI map[string][]string // command ids, oldest first

	stop      chan struct{}
	stopOnce  sync.Once
	cleanupOf time.Duration
}

// New constructs a Dispatcher. publisher may be nil (defaults to a
// no-op), matching the registry's constructor convention.
func New(sessions SessionLookup, writer ConnectionWriter, publisher bus.Publisher) *Dispatcher {
	if publisher == nil {
		publisher = bus.NoopPublisher{}
	}
	return &Dispatcher{
		sessions:  sessions,
		writer:    writer,
		publish:   publisher,
		byID:      make(map[string]*model.PendingCommand),
		byIMEI:    make(map[string][]string),
		stop:      make(chan struct{}),
		cleanupOf: time.Hour,
	}
}

// Send encodes and dispatches req. It always returns a
// PendingCommand (even on failure) so callers can surface its id and
// terminal status.
func (d *Dispatcher) Send(req model.CommandRequest) (*model.PendingCommand, error) {
	now := time.Now()
	cmd := &model.PendingCommand{
		CommandID:              uuid.NewString(),
		IMEI:                   req.IMEI,
		CommandType:            req.CommandType,
		WireForm:               req.WireForm,
		ExpectedResponsePrefix: req.ExpectedResponsePrefix,
		Status:                 model.CommandCreated,
		CreatedAt:              now,
	}

	session, ok := d.sessions.ByIMEI(req.IMEI)
	if !ok || !session.Authenticated {
		cmd.Status = model.CommandFailed
		cmd.ErrorDetails = ErrDeviceNotConnected.Error()
		d.store(cmd)
		d.publish.PublishCommandEvent(model.CommandEvent{
			IMEI: req.IMEI, CommandID: cmd.CommandID,
			Outcome: model.CommandOutcomeFailed, Detail: cmd.ErrorDetails, Timestamp: now,
		})
		return cmd, ErrDeviceNotConnected
	}

	cmd.Status = model.CommandPending

	language := uint16(gt06.CommandLanguageChinese)
	if req.English {
		language = gt06.CommandLanguageEnglish
	}
	serial := d.serial.Next()
	encoded := gt06.BuildCommandFrame([]byte(req.WireForm), req.ServerFlag, language, serial)

	if err := d.writer.Write(session.ConnectionHandle, encoded); err != nil {
		cmd.Status = model.CommandFailed
		cmd.ErrorDetails = err.Error()
		d.store(cmd)
		d.publish.PublishCommandEvent(model.CommandEvent{
			IMEI: req.IMEI, CommandID: cmd.CommandID,
			Outcome: model.CommandOutcomeFailed, Detail: cmd.ErrorDetails, Timestamp: time.Now(),
		})
		return cmd, ErrChannelClosed
	}

	sentAt := time.Now()
	cmd.Status = model.CommandSent
	cmd.SentAt = &sentAt
	d.store(cmd)
	d.publish.PublishCommandEvent(model.CommandEvent{
		IMEI: req.IMEI, CommandID: cmd.CommandID,
		Outcome: model.CommandOutcomeSent, Timestamp: sentAt,
	})
	return cmd.Clone(), nil
}

func (d *Dispatcher) store(cmd *model.PendingCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[cmd.CommandID] = cmd
	d.byIMEI[cmd.IMEI] = append(d.byIMEI[cmd.IMEI], cmd.CommandID)
}

// MatchResponse finds the oldest SENT pending command for imei whose
// expected_response_prefix prefixes text, acknowledges it, and returns
// it. It returns (nil, false) if nothing matches.
func (d *Dispatcher) MatchResponse(imei, text string) (*model.PendingCommand, bool) {
	d.mu.Lock()
	ids := d.byIMEI[imei]
	var matched *model.PendingCommand
	for _, id := range ids {
		cmd := d.byID[id]
		if cmd == nil || cmd.Status != model.CommandSent {
			continue
		}
		if hasPrefix(text, cmd.ExpectedResponsePrefix) {
			matched = cmd
			break
		}
	}
	if matched == nil {
		d.mu.Unlock()
		return nil, false
	}
	now := time.Now()
	matched.Status = model.CommandAcknowledged
	matched.AcknowledgedAt = &now
	matched.Response = text
	result := matched.Clone()
	d.mu.Unlock()

	d.publish.PublishCommandEvent(model.CommandEvent{
		IMEI: imei, CommandID: result.CommandID,
		Outcome: model.CommandOutcomeAcknowledged, Detail: text, Timestamp: now,
	})
	return result, true
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Cancel cancels a command while it is still CREATED or PENDING.
func (d *Dispatcher) Cancel(commandID string) error {
	d.mu.Lock()
	cmd, ok := d.byID[commandID]
	if !ok {
		d.mu.Unlock()
		return ErrNotFound
	}
	if cmd.Status != model.CommandCreated && cmd.Status != model.CommandPending {
		d.mu.Unlock()
		return ErrCannotCancel
	}
	now := time.Now()
	cmd.Status = model.CommandCancelled
	cmd.CancelledAt = &now
	imei := cmd.IMEI
	d.mu.Unlock()

	d.publish.PublishCommandEvent(model.CommandEvent{
		IMEI: imei, CommandID: commandID,
		Outcome: model.CommandOutcomeCancelled, Timestamp: now,
	})
	return nil
}

// FailAllForConnection completes every in-flight SENT command for imei
// with ChannelClosed, called when its connection goes away.
func (d *Dispatcher) FailAllForConnection(imei string) {
	d.mu.Lock()
	var toFail []*model.PendingCommand
	for _, id := range d.byIMEI[imei] {
		cmd := d.byID[id]
		if cmd != nil && cmd.Status == model.CommandSent {
			toFail = append(toFail, cmd)
		}
	}
	now := time.Now()
	for _, cmd := range toFail {
		cmd.Status = model.CommandFailed
		cmd.ErrorDetails = ErrChannelClosed.Error()
	}
	d.mu.Unlock()

	for _, cmd := range toFail {
		d.publish.PublishCommandEvent(model.CommandEvent{
			IMEI: imei, CommandID: cmd.CommandID,
			Outcome: model.CommandOutcomeFailed, Detail: cmd.ErrorDetails, Timestamp: now,
		})
	}
}

// Status returns a copy of the pending command with the given id.
func (d *Dispatcher) Status(commandID string) (*model.PendingCommand, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd, ok := d.byID[commandID]
	if !ok {
		return nil, false
	}
	return cmd.Clone(), true
}

// Start launches the periodic terminal-state cleanup sweep.
func (d *Dispatcher) Start() {
	go d.cleanupLoop()
}

// Stop ends the cleanup sweep. Safe to call multiple times.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *Dispatcher) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.cleanupTerminal()
		}
	}
}

func (d *Dispatcher) cleanupTerminal() {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, cmd := range d.byID {
		if !cmd.Status.IsTerminal() {
			continue
		}
		terminalAt := cmd.CreatedAt
		switch {
		case cmd.AcknowledgedAt != nil:
			terminalAt = *cmd.AcknowledgedAt
		case cmd.CancelledAt != nil:
			terminalAt = *cmd.CancelledAt
		}
		if now.Sub(terminalAt) < d.cleanupOf {
			continue
		}
		delete(d.byID, id)
		ids := d.byIMEI[cmd.IMEI]
		for i, existing := range ids {
			if existing == id {
				d.byIMEI[cmd.IMEI] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(d.byIMEI[cmd.IMEI]) == 0 {
			delete(d.byIMEI, cmd.IMEI)
		}
	}
}
