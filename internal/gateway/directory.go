package gateway

import "sync"

// Directory is the process-wide connection directory (spec.md §4.F): keyed
// by user_id, it holds the outbound sender of that user's live session.
// Insertion happens after successful authentication; removal at session
// teardown.
type Directory struct {
	mu      sync.Mutex
	senders map[int64]*Session
}

// NewDirectory creates an empty connection directory.
func NewDirectory() *Directory {
	return &Directory{senders: make(map[int64]*Session)}
}

// Put registers the session as the live connection for userID. If another
// session is already registered for this user, it is displaced: its
// reference is simply overwritten here, and the caller is responsible for
// tearing the prior connection down on its own terms.
func (d *Directory) Put(userID int64, s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[userID] = s
}

// Remove deletes the directory entry for userID, but only if it still points
// at s (a session that lost a race to a newer connection for the same user
// must not delete the newer entry).
func (d *Directory) Remove(userID int64, s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.senders[userID]; ok && current == s {
		delete(d.senders, userID)
	}
}

// PublishToGroup resolves participantIDs to their live sessions and attempts
// to deliver payload to each. Failed sends (closed channel or outbound
// overflow) are silently dropped: the corresponding session will tear down
// on its own.
func (d *Directory) PublishToGroup(participantIDs []int64, payload []byte) {
	d.mu.Lock()
	targets := make([]*Session, 0, len(participantIDs))
	for _, userID := range participantIDs {
		if s, ok := d.senders[userID]; ok {
			targets = append(targets, s)
		}
	}
	d.mu.Unlock()

	for _, s := range targets {
		s.enqueue(payload)
	}
}

// ConnectedCount returns the number of users with a live session registered.
func (d *Directory) ConnectedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.senders)
}
