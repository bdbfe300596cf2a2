// Package mesonpwm adds constant output, pulse count and blink controls to
// the Amlogic Meson PWM controller.
//
// A Chip drives four register banks (A/B, C/D, E/F and the always-on AO A/B
// pair) plus the separate AO blink bank, and exposes the controls as text
// attributes in the "<value> <channel>" form used by sysfs.
package mesonpwm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrInvalid is returned for unparsable input and out-of-range values or
// channel indices.
var ErrInvalid = errors.New("mesonpwm: invalid argument")

// Channel indexes a PWM output. Channels 0..7 are the first halves and
// 8..15 the second halves (A2, B2, ...) of the same outputs.
type Channel int

const (
	ChannelA Channel = iota
	ChannelB
	ChannelC
	ChannelD
	ChannelE
	ChannelF
	ChannelAOA
	ChannelAOB
	ChannelA2
	ChannelB2
	ChannelC2
	ChannelD2
	ChannelE2
	ChannelF2
	ChannelAOA2
	ChannelAOB2
)

var channelNames = [...]string{
	"A", "B", "C", "D", "E", "F", "AO_A", "AO_B",
	"A2", "B2", "C2", "D2", "E2", "F2", "AO_A2", "AO_B2",
}

func (c Channel) String() string {
	if c >= 0 && int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// second reports whether c is a second-half channel.
func (c Channel) second() bool { return c >= ChannelA2 }

// odd reports whether c is the B/D/F side of its pair.
func (c Channel) odd() bool { return c%2 == 1 }

// Attribute names a control.
type Attribute string

const (
	AttrConstant    Attribute = "constant"
	AttrTimes       Attribute = "times"
	AttrBlinkEnable Attribute = "blink_enable"
	AttrBlinkTimes  Attribute = "blink_times"
)

// Attributes lists every control in display order.
var Attributes = []Attribute{AttrConstant, AttrTimes, AttrBlinkEnable, AttrBlinkTimes}

const (
	bank1Channels = 8  // constant, blink_enable, blink_times
	timesChannels = 16 // times covers both halves

	constantBitA = 28
	constantBitB = 29
	blinkBitA    = 8
	blinkBitB    = 9
)

// Banks holds the register banks of one controller.
type Banks struct {
	AB      *Bank
	CD      *Bank
	EF      *Bank
	AO      *Bank
	AOBlink *Bank
}

// Chip is one PWM controller with its attribute state.
type Chip struct {
	mu    sync.Mutex
	banks Banks
	log   *slog.Logger

	constant    int
	times       int
	blinkEnable int
	blinkTimes  int
}

// Option customizes a Chip.
type Option func(*Chip)

// WithLogger sets the logger for rejected writes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chip) { c.log = l }
}

// New returns a Chip over b. Every bank must be present.
func New(b Banks, opts ...Option) (*Chip, error) {
	if b.AB == nil || b.CD == nil || b.EF == nil || b.AO == nil || b.AOBlink == nil {
		return nil, errors.New("mesonpwm: missing register bank")
	}
	c := &Chip{banks: b, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("chip", "meson-pwm")
	return c, nil
}

// bank returns the control bank holding the first-half channel ch&7.
func (c *Chip) bank(ch Channel) *Bank {
	switch ch % bank1Channels {
	case ChannelA, ChannelB:
		return c.banks.AB
	case ChannelC, ChannelD:
		return c.banks.CD
	case ChannelE, ChannelF:
		return c.banks.EF
	}
	return c.banks.AO
}

// blinkBank is bank, except the always-on pair blinks through its own bank.
func (c *Chip) blinkBank(ch Channel) *Bank {
	if ch == ChannelAOA || ch == ChannelAOB {
		return c.banks.AOBlink
	}
	return c.bank(ch)
}

func checkChannel(ch Channel, n int) error {
	if ch < 0 || int(ch) >= n {
		return fmt.Errorf("%w: channel %d not in 0..%d", ErrInvalid, int(ch), n-1)
	}
	return nil
}

// SetConstant turns constant output of ch on or off.
func (c *Chip) SetConstant(ch Channel, on bool) error {
	if err := checkChannel(ch, bank1Channels); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bit := uint32(1) << constantBitA
	if ch.odd() {
		bit = 1 << constantBitB
	}
	r := &c.bank(ch).misc
	if on {
		setBits(r, bit, bit)
	} else {
		setBits(r, bit, 0)
	}
	return nil
}

// SetTimes sets the pulse repeat count of ch, 1..255.
func (c *Chip) SetTimes(ch Channel, n int) error {
	if err := checkChannel(ch, timesChannels); err != nil {
		return err
	}
	if n < 1 || n > 255 {
		return fmt.Errorf("%w: times %d not in 1..255", ErrInvalid, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var shift uint
	switch {
	case !ch.second() && !ch.odd():
		shift = 24
	case !ch.second() && ch.odd():
		shift = 8
	case ch.second() && !ch.odd():
		shift = 16
	}
	r := &c.bank(ch).time
	clearBits(r, 0xFF<<shift)
	orBits(r, uint32(n)<<shift)
	return nil
}

// SetBlink turns blinking of ch on or off.
func (c *Chip) SetBlink(ch Channel, on bool) error {
	if err := checkChannel(ch, bank1Channels); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bit := uint32(1) << blinkBitA
	if ch.odd() {
		bit = 1 << blinkBitB
	}
	r := &c.blinkBank(ch).blink
	if on {
		setBits(r, bit, bit)
	} else {
		setBits(r, bit, 0)
	}
	return nil
}

// SetBlinkTimes sets the blink count of ch, 1..15.
func (c *Chip) SetBlinkTimes(ch Channel, n int) error {
	if err := checkChannel(ch, bank1Channels); err != nil {
		return err
	}
	if n < 1 || n > 15 {
		return fmt.Errorf("%w: blink times %d not in 1..15", ErrInvalid, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var shift uint
	if ch.odd() {
		shift = 4
	}
	r := &c.blinkBank(ch).blink
	clearBits(r, 0xF<<shift)
	orBits(r, uint32(n)<<shift)
	return nil
}

// Show returns the last value stored to attr, newline terminated.
func (c *Chip) Show(attr Attribute) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var v int
	switch attr {
	case AttrConstant:
		v = c.constant
	case AttrTimes:
		v = c.times
	case AttrBlinkEnable:
		v = c.blinkEnable
	case AttrBlinkTimes:
		v = c.blinkTimes
	default:
		return "", fmt.Errorf("%w: unknown attribute %q", ErrInvalid, attr)
	}
	return fmt.Sprintf("%d\n", v), nil
}

// Store parses "<value> <channel>" and applies it to attr. The value shown by
// Show changes only when the write is accepted.
func (c *Chip) Store(attr Attribute, input string) error {
	var val, id int
	if n, err := fmt.Sscanf(strings.TrimSpace(input), "%d %d", &val, &id); n != 2 || err != nil {
		c.log.Error("Can't parse pwm id and value, usage: [value index]", "attr", attr, "input", input)
		return fmt.Errorf("%w: %q: usage: <value> <index>", ErrInvalid, input)
	}
	ch := Channel(id)

	var err error
	switch attr {
	case AttrConstant:
		err = c.storeSwitch(val, func(on bool) error { return c.SetConstant(ch, on) }, &c.constant)
	case AttrBlinkEnable:
		err = c.storeSwitch(val, func(on bool) error { return c.SetBlink(ch, on) }, &c.blinkEnable)
	case AttrTimes:
		if err = c.SetTimes(ch, val); err == nil {
			c.remember(&c.times, val)
		}
	case AttrBlinkTimes:
		if err = c.SetBlinkTimes(ch, val); err == nil {
			c.remember(&c.blinkTimes, val)
		}
	default:
		err = fmt.Errorf("%w: unknown attribute %q", ErrInvalid, attr)
	}
	if err != nil {
		c.log.Error("pwm attribute write rejected", "attr", attr, "channel", ch, "value", val, "error", err)
		return err
	}
	c.log.Debug("pwm attribute written", "attr", attr, "channel", ch, "value", val)
	return nil
}

// storeSwitch applies a 0/1 value through set.
func (c *Chip) storeSwitch(val int, set func(bool) error, last *int) error {
	if val != 0 && val != 1 {
		return fmt.Errorf("%w: value %d not 0 or 1", ErrInvalid, val)
	}
	if err := set(val == 1); err != nil {
		return err
	}
	c.remember(last, val)
	return nil
}

func (c *Chip) remember(last *int, val int) {
	c.mu.Lock()
	*last = val
	c.mu.Unlock()
}
