package inventronix

import (
	"testing"
	"time"
)

// fakePin records every level written to it.
type fakePin struct {
	writes []bool
}

func (p *fakePin) Set(high bool) error {
	p.writes = append(p.writes, high)
	return nil
}

func (p *fakePin) count(high bool) int {
	n := 0
	for _, w := range p.writes {
		if w == high {
			n++
		}
	}
	return n
}

func pulseBody(name string) []byte {
	return []byte(`{"commands":[{"command":"` + name + `","execution_id":"ex-1"}]}`)
}

func TestPulsePollLifecycle(t *testing.T) {
	c, _, clk := newTestClient(t, Config{PulseMode: PulsePoll})
	pin := &fakePin{}
	c.OnPulsePin("pump", pin, 5*time.Second)
	if pin.count(false) != 1 { // driven low at registration
		t.Fatalf("pin lows at registration = %d, want 1", pin.count(false))
	}

	c.processCommands(pulseBody("pump"))

	if !c.IsPulsing("pump") {
		t.Fatal("pulse should be active after dispatch")
	}
	if pin.count(true) != 1 {
		t.Fatalf("pin highs = %d, want 1", pin.count(true))
	}

	// Not due yet: Loop must not deactivate early.
	clk.advance(4 * time.Second)
	c.Loop()
	if !c.IsPulsing("pump") {
		t.Fatal("pulse ended early")
	}

	clk.advance(1 * time.Second)
	c.Loop()
	if c.IsPulsing("pump") {
		t.Fatal("pulse still active after duration elapsed")
	}
	if pin.count(false) != 2 { // registration + deactivation
		t.Errorf("pin lows = %d, want 2", pin.count(false))
	}

	// Ticking again must not fire a second deactivation.
	clk.advance(time.Second)
	c.Loop()
	if pin.count(false) != 2 {
		t.Errorf("duplicate deactivation: pin lows = %d", pin.count(false))
	}
}

func TestPulseSpamGuard(t *testing.T) {
	c, _, clk := newTestClient(t, Config{PulseMode: PulsePoll})
	pin := &fakePin{}
	c.OnPulsePin("pump", pin, 5*time.Second)

	c.processCommands(pulseBody("pump"))
	clk.advance(2 * time.Second)
	c.processCommands(pulseBody("pump")) // dropped, not queued or extended

	if pin.count(true) != 1 {
		t.Errorf("pin highs = %d, want 1 (re-trigger must be dropped)", pin.count(true))
	}

	// Deactivation still fires at the originally scheduled time.
	clk.advance(3 * time.Second)
	c.Loop()
	if c.IsPulsing("pump") {
		t.Error("pulse should have ended at the original deadline")
	}
}

func TestPulseWithoutDurationNeverActivates(t *testing.T) {
	c, _, _ := newTestClient(t, Config{PulseMode: PulsePoll})
	pin := &fakePin{}
	c.OnPulsePin("pump", pin, 0)

	c.processCommands(pulseBody("pump")) // no duration anywhere

	if c.IsPulsing("pump") {
		t.Fatal("pulse with no resolvable duration must not activate")
	}
	if pin.count(true) != 0 {
		t.Errorf("pin highs = %d, want 0", pin.count(true))
	}
}

func TestPulseDurationFromArguments(t *testing.T) {
	for _, key := range []string{"duration", "duration_ms"} {
		t.Run(key, func(t *testing.T) {
			c, _, clk := newTestClient(t, Config{PulseMode: PulsePoll})
			pin := &fakePin{}
			c.OnPulsePin("pump", pin, 0)

			c.processCommands([]byte(`{"commands":[{"command":"pump","arguments":{"` + key + `":250}}]}`))
			if !c.IsPulsing("pump") {
				t.Fatal("pulse should activate with duration from arguments")
			}

			clk.advance(250 * time.Millisecond)
			c.Loop()
			if c.IsPulsing("pump") {
				t.Error("pulse should have ended after the argument duration")
			}
		})
	}
}

func TestPulseConfiguredDurationWinsOverArguments(t *testing.T) {
	c, _, clk := newTestClient(t, Config{PulseMode: PulsePoll})
	pin := &fakePin{}
	c.OnPulsePin("pump", pin, 1*time.Second)

	c.processCommands([]byte(`{"commands":[{"command":"pump","arguments":{"duration":60000}}]}`))

	clk.advance(1 * time.Second)
	c.Loop()
	if c.IsPulsing("pump") {
		t.Error("configured duration must take precedence over arguments")
	}
}

func TestPulseTimerMode(t *testing.T) {
	c, _, clk := newTestClient(t, Config{PulseMode: PulseTimer})
	var ons, offs int
	c.OnPulseFunc("valve", 2*time.Second, func() { ons++ }, func() { offs++ })

	c.processCommands(pulseBody("valve"))
	if ons != 1 {
		t.Fatalf("on callbacks = %d, want 1", ons)
	}
	if len(clk.timers) != 1 {
		t.Fatalf("scheduled timers = %d, want 1", len(clk.timers))
	}

	// Loop is a no-op in timer mode; it must not deactivate anything.
	clk.advance(1 * time.Second)
	c.Loop()
	if !c.IsPulsing("valve") {
		t.Fatal("Loop deactivated a timer-mode pulse")
	}

	clk.advance(1 * time.Second) // fires the timer
	if c.IsPulsing("valve") {
		t.Fatal("pulse still active after timer fired")
	}
	if offs != 1 {
		t.Errorf("off callbacks = %d, want 1", offs)
	}

	// A duplicate fire of the deactivation point is a no-op.
	c.pulseOff(0)
	if offs != 1 {
		t.Errorf("off callbacks after duplicate fire = %d, want 1", offs)
	}
}

// retriggerPin re-dispatches its own pulse command from inside the
// deactivation write, landing in the window between the off claim and the
// pin reaching its idle level.
type retriggerPin struct {
	fakePin
	c     *Client
	armed bool
}

func (p *retriggerPin) Set(high bool) error {
	p.fakePin.Set(high)
	if !high && p.armed {
		p.armed = false
		p.c.processCommands(pulseBody("pump"))
	}
	return nil
}

func TestPulseRetriggerDuringDeactivationIsDropped(t *testing.T) {
	c, _, clk := newTestClient(t, Config{PulseMode: PulseTimer})
	pin := &retriggerPin{c: c}
	c.OnPulsePin("pump", pin, 2*time.Second)

	c.processCommands(pulseBody("pump"))
	pin.armed = true

	// Fires the deactivation; the pin write re-triggers the pulse before
	// the deactivation has finished. The entry must still read active at
	// that point so the re-trigger is dropped, not activated on top of a
	// half-finished off.
	clk.advance(2 * time.Second)

	if got := pin.writes; len(got) != 3 || got[0] || !got[1] || got[2] {
		t.Fatalf("pin writes = %v, want [low high low]", got)
	}
	if c.IsPulsing("pump") {
		t.Error("entry still active after deactivation completed")
	}
	if len(clk.timers) != 1 {
		t.Errorf("scheduled timers = %d, want 1 (dropped re-trigger must not schedule another)", len(clk.timers))
	}
}

func TestPulseReusableAfterCycle(t *testing.T) {
	c, _, clk := newTestClient(t, Config{PulseMode: PulsePoll})
	pin := &fakePin{}
	c.OnPulsePin("pump", pin, time.Second)

	for cycle := 1; cycle <= 3; cycle++ {
		c.processCommands(pulseBody("pump"))
		if !c.IsPulsing("pump") {
			t.Fatalf("cycle %d: pulse should be active", cycle)
		}
		clk.advance(time.Second)
		c.Loop()
		if c.IsPulsing("pump") {
			t.Fatalf("cycle %d: pulse should have ended", cycle)
		}
	}
	if pin.count(true) != 3 {
		t.Errorf("pin highs = %d, want 3", pin.count(true))
	}
}
