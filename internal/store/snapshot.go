package store

// PushLatest delivers v on a capacity-1 snapshot channel, displacing any
// undelivered older snapshot. Subscribers that lag only ever see the
// newest full set (last write wins per stream).
func PushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
