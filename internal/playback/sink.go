package playback

// Sink is one playback strategy. Callers depend only on probe/play and the
// returned handle's stop; which decode path actually runs is the sink's
// business.
type Sink interface {
	Name() string
	// Probe reports whether the sink can play on this host. Called once at
	// startup to order the strategy list.
	Probe() error
	// Play starts playing the encoded audio and calls onDone exactly once
	// when playback finishes or is stopped. The returned handle stops the
	// session early.
	Play(audio []byte, onDone func()) (Handle, error)
}

// Handle is the stop capability for one live playback session.
type Handle interface {
	Stop()
}
