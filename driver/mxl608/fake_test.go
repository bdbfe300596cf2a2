package mxl608

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"periph.io/x/conn/v3"
)

type op struct {
	Write bool
	Reg   uint8
	Val   uint8
}

func w(reg, val uint8) op { return op{Write: true, Reg: reg, Val: val} }
func r(reg, val uint8) op { return op{Reg: reg, Val: val} }

var errNack = errors.New("nack")

// fakeConn is a register file that records every transaction in order.
type fakeConn struct {
	regs   [256]uint8
	ops    []op
	n      int
	failAt int // 1-based transaction number to fail, 0 for never
}

func (f *fakeConn) String() string { return "fake-i2c" }
func (f *fakeConn) Duplex() conn.Duplex { return conn.Half }

func (f *fakeConn) Tx(wb, rb []byte) error {
	f.n++
	if f.failAt != 0 && f.n == f.failAt {
		return errNack
	}
	switch {
	case len(wb) == 2 && wb[0] == readPrefix && len(rb) == 1:
		rb[0] = f.regs[wb[1]]
		f.ops = append(f.ops, r(wb[1], rb[0]))
	case len(wb) == 2 && len(rb) == 0:
		f.regs[wb[0]] = wb[1]
		f.ops = append(f.ops, w(wb[0], wb[1]))
	default:
		return errors.New("unexpected transaction shape")
	}
	return nil
}

func (f *fakeConn) writes() []op {
	var out []op
	for _, o := range f.ops {
		if o.Write {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.ops = nil
	f.n = 0
}

type fakeGate struct {
	open   bool
	opens  int
	closes int
}

func (g *fakeGate) SetGate(open bool) error {
	g.open = open
	if open {
		g.opens++
	} else {
		g.closes++
	}
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestDevice(t *testing.T, cfg Config) (*Device, *fakeConn, *fakeGate) {
	t.Helper()
	c := &fakeConn{}
	c.regs[regChipID] = chipIDValue
	g := &fakeGate{}
	d, err := New(c, cfg, WithGate(g), WithLogger(discard))
	assert.NilError(t, err)
	d.sleep = func(time.Duration) {}
	c.reset()
	return d, c, g
}

// indexOf returns the position of the first op equal to o at or after from.
func indexOf(ops []op, o op, from int) int {
	for i := from; i < len(ops); i++ {
		if ops[i] == o {
			return i
		}
	}
	return -1
}
