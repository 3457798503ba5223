package projection

// sequenceGuard discards subscription messages that arrive out of order
// or as duplicates. It tracks the next expected
// subscription_message_sequence_number; a message whose Seq does not
// match is silently dropped.
//
// The expected number starts "unarmed" (no subscription-origin message is
// accepted at all) and is armed to 0 immediately before the runtime
// publishes SubscribeProjection, giving the subscriber the contract that
// its first message is numbered 0.
type sequenceGuard struct {
	expected *int64
}

// reset returns the guard to "unarmed": every subscription message is
// discarded until arm is called again. Used whenever the lifecycle resets
// to Initial.
func (g *sequenceGuard) reset() {
	g.expected = nil
}

// arm sets the next expected sequence number to 0, called right before the
// runtime publishes SubscribeProjection.
func (g *sequenceGuard) arm() {
	zero := int64(0)
	g.expected = &zero
}

// check reports whether seq is the next expected number and, if so,
// advances the expectation and returns true. If unarmed or seq does not
// match, it returns false and the caller must discard the message without
// any other observable effect.
func (g *sequenceGuard) check(seq int64) bool {
	if g.expected == nil || seq != *g.expected {
		return false
	}
	next := seq + 1
	g.expected = &next
	return true
}
