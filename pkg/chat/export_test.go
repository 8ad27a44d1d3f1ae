package chat

// SubscribePrepared exposes the prepare step of SubscribeRoom so tests can
// control how long decoding takes.
func SubscribePrepared(m *Manager, destination string, prepare func([]byte) (func(), error)) (*Subscription, error) {
	return m.subscribe(destination, prepare)
}
