package module

import "sync/atomic"

// Base provides the bookkeeping every concrete Module needs
// (running flag, port accessors) so implementations only write Init/
// Start/Stop. Embed it and call MarkStarted/MarkStopped from Start/Stop.
type Base struct {
	NameValue     string
	PriorityValue int
	RPCPortValue  int
	WebPortValue  int

	running atomic.Bool
}

func (b *Base) Name() string    { return b.NameValue }
func (b *Base) Priority() int   { return b.PriorityValue }
func (b *Base) RPCPort() int    { return b.RPCPortValue }
func (b *Base) WebPort() int    { return b.WebPortValue }
func (b *Base) IsRunning() bool { return b.running.Load() }
func (b *Base) MarkStarted()    { b.running.Store(true) }
func (b *Base) MarkStopped()    { b.running.Store(false) }
