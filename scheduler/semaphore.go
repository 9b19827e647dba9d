package scheduler

import "context"

// semaphore is a counting semaphore over a buffered channel. It is the
// single arbiter of dispatch admission: the puller reads available but
// never acquires; permits are held only around dispatcher invocations.
type semaphore struct {
	slots chan struct{}
}

func newSemaphore(n int) *semaphore {
	return &semaphore{slots: make(chan struct{}, n)}
}

// acquire blocks until a permit is free or ctx is done.
func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release returns a permit. Must pair with a successful acquire.
func (s *semaphore) release() {
	<-s.slots
}

// available reports the number of free permits.
func (s *semaphore) available() int {
	return cap(s.slots) - len(s.slots)
}
