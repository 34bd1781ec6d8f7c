package block

// Requester lets a block ask the dispatcher for an out-of-band update.
type Requester struct {
	ch   chan<- int
	done <-chan struct{}
}

// NewRequester wires a requester to the dispatcher's request channel. done is
// closed when the dispatcher stops consuming.
func NewRequester(ch chan<- int, done <-chan struct{}) Requester {
	return Requester{ch: ch, done: done}
}

// Request enqueues an update for block id. It blocks while the queue is
// full and returns ErrChannelClosed once the dispatcher is gone.
func (r Requester) Request(id int) error {
	if r.ch == nil {
		return ErrChannelClosed
	}
	select {
	case <-r.done:
		return ErrChannelClosed
	default:
	}
	select {
	case r.ch <- id:
		return nil
	case <-r.done:
		return ErrChannelClosed
	}
}
