package vidlink

// A Listener is told about decode session transitions. Callbacks are
// delivered one at a time from a dedicated goroutine, never while the
// Manager holds internal locks, so they may call back into the Manager.
type Listener interface {
	// The decoder produced its first output buffer.
	OnDecodingStarted()

	// The decoder failed. OnDecodingEnded follows.
	OnDecodingError()

	// The session is over and the decoder has been released.
	OnDecodingEnded()
}

// ListenerFuncs adapts optional functions to the Listener interface.
type ListenerFuncs struct {
	Started func()
	Error   func()
	Ended   func()
}

func (l ListenerFuncs) OnDecodingStarted() {
	if l.Started != nil {
		l.Started()
	}
}

func (l ListenerFuncs) OnDecodingError() {
	if l.Error != nil {
		l.Error()
	}
}

func (l ListenerFuncs) OnDecodingEnded() {
	if l.Ended != nil {
		l.Ended()
	}
}
