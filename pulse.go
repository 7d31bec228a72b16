package inventronix

import "time"

// startPulse drives the Idle→Active transition for the pulse at table
// index idx. The transition aborts when no duration can be resolved, or
// when the entry is already active (spam guard: repeated triggers are
// dropped, never queued or extended).
func (c *Client) startPulse(idx int, args map[string]any) {
	p := &c.pulses[idx]

	duration := p.duration
	if duration == 0 {
		duration = durationFromArgs(args)
	}
	if duration <= 0 {
		c.info("no duration for pulse command, ignoring",
			"command", p.name, "hint", "set one at registration or send duration_ms in arguments")
		return
	}

	c.pulseMu.Lock()
	if p.active {
		c.pulseMu.Unlock()
		c.info("already pulsing, ignoring", "command", p.name)
		return
	}
	p.active = true
	p.startedAt = c.clock.Now()
	p.activeFor = duration
	c.pulseMu.Unlock()

	c.info("pulsing", "command", p.name, "duration", duration)

	// The on side effect runs outside the lock: handlers may call back
	// into IsPulsing. The entry was claimed above and any in-flight
	// deactivation keeps the entry active until its off effect finishes,
	// so no two side effects for this entry can interleave.
	c.pulseEffect(p, true)

	if c.cfg.PulseMode == PulseTimer {
		// One-shot timer, routed through the single deactivation point by
		// stable table index — the callback runs on a timer goroutine and
		// must not capture the entry itself.
		c.clock.AfterFunc(duration, func() { c.pulseOff(idx) })
	}
}

// pulseOff is the single Active→Idle dispatch point, reached from the
// poll loop or from a timer callback. Firing on an idle entry is a no-op,
// so a duplicate timer fire is harmless. The entry stays active until the
// off side effect has run: a re-trigger landing between the claim and the
// pin write is dropped by the spam guard rather than activating on top of
// a half-finished deactivation.
func (c *Client) pulseOff(idx int) {
	if idx < 0 || idx >= len(c.pulses) {
		return
	}
	p := &c.pulses[idx]

	c.pulseMu.Lock()
	if !p.active || p.stopping {
		c.pulseMu.Unlock()
		return
	}
	p.stopping = true
	c.pulseMu.Unlock()

	c.info("pulse complete", "command", p.name)

	c.pulseEffect(p, false)

	c.pulseMu.Lock()
	p.active = false
	p.stopping = false
	c.pulseMu.Unlock()
}

// pulseEffect applies one side of a pulse, driving the pin or running the
// matching callback. Panics are contained like toggle handler panics, so a
// broken actuator driver cannot abort command processing.
func (c *Client) pulseEffect(p *pulseEntry, high bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("pulse handler panicked",
				"command", p.name, "high", high, "panic", r)
		}
	}()
	if p.pin != nil {
		if err := p.pin.Set(high); err != nil {
			c.logger.Error("pulse pin write failed",
				"command", p.name, "high", high, "err", err)
		}
		return
	}
	if high {
		if p.on != nil {
			p.on()
		}
	} else if p.off != nil {
		p.off()
	}
}

// Loop fires deactivations for pulses whose duration has elapsed. In
// PulsePoll mode the host control loop must call it frequently and
// regularly: a stalled loop delays deactivation but never drops it, and a
// pulse never ends early. In PulseTimer mode Loop is a no-op.
func (c *Client) Loop() {
	if c.cfg.PulseMode != PulsePoll {
		return
	}
	now := c.clock.Now()
	for i := range c.pulses {
		c.pulseMu.Lock()
		due := c.pulses[i].active && now.Sub(c.pulses[i].startedAt) >= c.pulses[i].activeFor
		c.pulseMu.Unlock()
		if due {
			c.pulseOff(i)
		}
	}
}

// durationFromArgs reads a millisecond duration from command arguments,
// trying "duration" then "duration_ms". JSON numbers decode as float64;
// other types are ignored.
func durationFromArgs(args map[string]any) time.Duration {
	for _, key := range []string{"duration", "duration_ms"} {
		switch v := args[key].(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Millisecond))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Millisecond
			}
		}
	}
	return 0
}
