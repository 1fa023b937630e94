package service

import "sync"

// sequencer hands out per-room tickets. A ticket holder waits for the
// previous holder of the same room to finish, so work done under tickets runs
// in ticket order while different rooms proceed independently.
type sequencer struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{tails: make(map[int64]chan struct{})}
}

// ticket returns a channel that closes when it is the caller's turn (nil
// means now) and a release func that must be called exactly once.
func (s *sequencer) ticket(roomID int64) (<-chan struct{}, func()) {
	cur := make(chan struct{})
	s.mu.Lock()
	prev := s.tails[roomID]
	s.tails[roomID] = cur
	s.mu.Unlock()

	return prev, func() {
		s.mu.Lock()
		if s.tails[roomID] == cur {
			delete(s.tails, roomID)
		}
		s.mu.Unlock()
		close(cur)
	}
}

// run executes fn in ticket order for roomID.
func (s *sequencer) run(roomID int64, fn func()) {
	wait, release := s.ticket(roomID)
	defer release()
	if wait != nil {
		<-wait
	}
	fn()
}

func (s *sequencer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}
