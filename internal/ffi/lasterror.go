package ffi

import "sync"

// ErrorSlots holds the last error message per calling thread. Threads are
// identified by a key the caller derives from the OS thread, such as
// pthread_self.
type ErrorSlots struct {
	mu    sync.Mutex
	slots map[uintptr]string
}

// NewErrorSlots creates an empty set of slots.
func NewErrorSlots() *ErrorSlots {
	return &ErrorSlots{slots: make(map[uintptr]string)}
}

// Set records msg for thread.
func (s *ErrorSlots) Set(thread uintptr, msg string) {
	s.mu.Lock()
	s.slots[thread] = msg
	s.mu.Unlock()
}

// Clear forgets the message of thread.
func (s *ErrorSlots) Clear(thread uintptr) {
	s.mu.Lock()
	delete(s.slots, thread)
	s.mu.Unlock()
}

// Get returns the message of thread.
func (s *ErrorSlots) Get(thread uintptr) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.slots[thread]
	return msg, ok
}

// CopyTo writes the message of thread into buf followed by a NUL byte and
// returns the number of message bytes written. Without a message it writes
// an empty string. It returns -1 when buf cannot hold the message and its
// terminator.
func (s *ErrorSlots) CopyTo(thread uintptr, buf []byte) int {
	msg, _ := s.Get(thread)
	if len(buf) < len(msg)+1 {
		return -1
	}
	n := copy(buf, msg)
	buf[n] = 0
	return n
}
