package inventronix

import (
	"encoding/json"
	"time"
)

// CommandFunc handles a toggle command. args is the command's arguments
// object; it may be nil. The handler owns all resulting hardware side
// effects and their persistence.
type CommandFunc func(args map[string]any)

// Pin abstracts a digital output the pulse subsystem drives high and low.
// Implementations wrap whatever GPIO access the platform provides.
type Pin interface {
	Set(high bool) error
}

type commandEntry struct {
	name string
	fn   CommandFunc
}

type pulseEntry struct {
	name     string
	pin      Pin    // nil for callback-based entries
	on, off  func() // used when pin is nil
	duration time.Duration

	// Mutable pulse state, guarded by Client.pulseMu. stopping marks a
	// claimed deactivation whose off side effect has not finished yet;
	// the entry stays active until it has, so a re-trigger in that window
	// hits the spam guard instead of racing the off effect.
	active    bool
	stopping  bool
	startedAt time.Time
	activeFor time.Duration
}

// ─────────────────────────────────────────────────────────────────────────────
// Registration — setup time only, before the first SendPayload
// ─────────────────────────────────────────────────────────────────────────────

// OnCommand registers a toggle command handler. Beyond MaxCommands the
// registration is logged and dropped. Duplicate names are appended, not
// replaced; dispatch matches the first registration.
func (c *Client) OnCommand(name string, fn CommandFunc) {
	if len(c.commands) >= c.cfg.MaxCommands {
		c.logger.Warn("command registry full, ignoring registration", "command", name)
		return
	}
	c.commands = append(c.commands, commandEntry{name: name, fn: fn})
	c.info("registered command", "command", name)
}

// OnPulsePin registers a pulse command that drives pin high for the
// duration, then low. A zero duration means the duration comes from the
// command's arguments ("duration" or "duration_ms", in milliseconds).
// The pin is driven low at registration so the actuator starts out off.
func (c *Client) OnPulsePin(name string, pin Pin, duration time.Duration) {
	if !c.registerPulse(pulseEntry{name: name, pin: pin, duration: duration}) {
		return
	}
	if err := pin.Set(false); err != nil {
		c.logger.Warn("could not reset pin at registration", "command", name, "err", err)
	}
	c.info("registered pulse command", "command", name, "duration", duration)
}

// OnPulseFunc registers a pulse command with explicit on/off callbacks
// instead of a pin. Duration semantics match OnPulsePin.
func (c *Client) OnPulseFunc(name string, duration time.Duration, on, off func()) {
	if !c.registerPulse(pulseEntry{name: name, on: on, off: off, duration: duration}) {
		return
	}
	c.info("registered pulse command", "command", name, "duration", duration)
}

func (c *Client) registerPulse(entry pulseEntry) bool {
	if len(c.pulses) >= c.cfg.MaxPulses {
		c.logger.Warn("pulse registry full, ignoring registration", "command", entry.name)
		return false
	}
	c.pulses = append(c.pulses, entry)
	return true
}

// IsPulsing reports whether the named pulse command is currently active.
// Useful for reporting actual actuator state back in telemetry payloads.
func (c *Client) IsPulsing(name string) bool {
	c.pulseMu.Lock()
	defer c.pulseMu.Unlock()
	for i := range c.pulses {
		if c.pulses[i].name == name {
			return c.pulses[i].active
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Command processing
// ─────────────────────────────────────────────────────────────────────────────

// commandPayload is the expected response shape from a successful ingest.
type commandPayload struct {
	Commands []commandInvocation `json:"commands"`
}

type commandInvocation struct {
	Command     string         `json:"command"`
	ExecutionID string         `json:"execution_id"`
	Arguments   map[string]any `json:"arguments"`
}

// processCommands parses the commands array out of a response body and
// dispatches each entry. Malformed server output never fails the already
// successful delivery: parse errors are logged and swallowed.
func (c *Client) processCommands(body []byte) {
	if len(body) == 0 {
		return
	}
	var payload commandPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.debug("could not parse response body", "err", err)
		return
	}
	if len(payload.Commands) == 0 {
		return
	}

	c.info("received commands", "count", len(payload.Commands))
	for _, cmd := range payload.Commands {
		if cmd.Command == "" {
			continue
		}
		c.dispatch(cmd)
	}
}

// dispatch routes one command to the first matching handler: toggle
// registry first, then pulse registry. A handler failure is contained so
// subsequent commands in the same response still run.
func (c *Client) dispatch(cmd commandInvocation) {
	c.info("dispatching command", "command", cmd.Command, "execution_id", cmd.ExecutionID)

	for i := range c.commands {
		if c.commands[i].name == cmd.Command {
			c.debug("matched toggle handler", "command", cmd.Command)
			c.invokeToggle(c.commands[i].fn, cmd)
			// Execution acknowledgement goes here once the platform
			// exposes an ack endpoint; execution_id is carried for that.
			return
		}
	}

	for i := range c.pulses {
		if c.pulses[i].name == cmd.Command {
			c.startPulse(i, cmd.Arguments)
			return
		}
	}

	c.info("no handler registered for command", "command", cmd.Command)
}

func (c *Client) invokeToggle(fn CommandFunc, cmd commandInvocation) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("command handler panicked",
				"command", cmd.Command, "execution_id", cmd.ExecutionID, "panic", r)
		}
	}()
	fn(cmd.Arguments)
}
