package peer

import "github.com/pion/webrtc/v3"

// CandidateBuffer holds remote ICE candidates that arrived before the remote description
// was applied. Once drained, it stays empty and candidates are expected to be applied directly.
type CandidateBuffer struct {
	pending []webrtc.ICECandidateInit
	drained bool
}

// Appends a candidate to the end of the queue.
func (b *CandidateBuffer) Enqueue(candidate webrtc.ICECandidateInit) {
	b.pending = append(b.pending, candidate)
}

// Applies all buffered candidates in arrival order and marks the buffer as drained.
// Stops at the first candidate that could not be applied; the rest is dropped.
func (b *CandidateBuffer) Drain(apply func(webrtc.ICECandidateInit) error) error {
	pending := b.pending
	b.pending = nil
	b.drained = true

	for _, candidate := range pending {
		if err := apply(candidate); err != nil {
			return err
		}
	}

	return nil
}

// Whether `Drain` has been called already.
func (b *CandidateBuffer) Drained() bool {
	return b.drained
}

func (b *CandidateBuffer) Len() int {
	return len(b.pending)
}
