package pixelring

import "github.com/teslashibe/go-respeaker/pkg/hardware"

// idle breathes one randomly chosen LED, then rests.
func (e *Engine) idle() {
	if e.delayOnState(e.timing.IdleLead, Idle) {
		return
	}
	e.check(e.strip.ClearAll())

	led := e.pick(e.profile.LEDs)
	color := e.profile.Colors[Idle]
	for _, bri := range e.levels {
		e.check(e.strip.SetPixel(led, hardware.Scale(color, bri)))
		e.refresh()
		if e.delayOnState(e.timing.IdleStep, Idle) {
			return
		}
	}

	e.check(e.strip.SetPixel(led, hardware.Black))
	e.refresh()
	e.delayOnState(e.timing.IdleRest, Idle)
}

// listening chases every third LED around the ring.
func (e *Engine) listening() {
	group := e.profile.LEDs / 3
	color := hardware.Scale(e.profile.Colors[Listening], e.profile.MaxBrightness)

	for phase := 0; phase < 3; phase++ {
		for g := 0; g < group; g++ {
			e.check(e.strip.SetPixel(g*3+phase, color))
		}
		e.refresh()
		if e.delayOnState(e.timing.ListenStep, Listening) {
			return
		}
		e.check(e.strip.ClearAll())
		if e.delayOnState(e.timing.ListenStep, Listening) {
			return
		}
	}
}

// speaking pulses the whole ring.
func (e *Engine) speaking() {
	color := e.profile.Colors[Speaking]
	for _, bri := range e.levels {
		e.fill(hardware.Scale(color, bri))
		e.refresh()
		if e.delayOnState(e.timing.SpeakStep, Speaking) {
			return
		}
	}
	e.check(e.strip.ClearAll())
	e.delayOnState(e.timing.SpeakRest, Speaking)
}

// ramp runs one brightness sweep in the state's color and, unless something
// else was requested meanwhile, hands over to Idle.
func (e *Engine) ramp(s State) {
	color := e.profile.Colors[s]
	for _, bri := range e.levels {
		e.fill(hardware.Scale(color, bri))
		e.refresh()
		if e.delayOnState(e.timing.RampStep, s) {
			return
		}
	}
	e.check(e.strip.ClearAll())
	e.compareAndSwap(s, Idle)
}

// disabled blanks the ring until the state moves away from s.
func (e *Engine) disabled(s State) {
	e.check(e.strip.ClearAll())
	e.delayOnState(-1, s)
}

func (e *Engine) fill(c hardware.Color) {
	for i := 0; i < e.profile.LEDs; i++ {
		e.check(e.strip.SetPixel(i, c))
	}
}
