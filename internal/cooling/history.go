package cooling

import (
	"encoding/json"
	"time"
)

const minDataPoints = 2

// Sample is one (time, value) pair. Invalid samples are the pre-filled
// slots of a ring and serialize as [null, null].
type Sample struct {
	Time  time.Duration
	Value float64
	Valid bool
}

func (s Sample) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("[null,null]"), nil
	}
	return json.Marshal([2]float64{s.Time.Seconds(), s.Value})
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	var pair [2]*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if pair[0] == nil || pair[1] == nil {
		*s = Sample{}
		return nil
	}
	*s = Sample{
		Time:  time.Duration(*pair[0] * float64(time.Second)),
		Value: *pair[1],
		Valid: true,
	}
	return nil
}

// ring is a fixed size circular buffer, head points at the oldest sample.
type ring struct {
	samples []Sample
	head    int
}

func newRing(capacity int) ring {
	return ring{samples: make([]Sample, capacity)}
}

func (r *ring) push(s Sample) {
	r.samples[r.head] = s
	r.head = (r.head + 1) % len(r.samples)
}

// at returns the n-th most recent sample, 0 being the newest.
func (r *ring) at(n int) Sample {
	size := len(r.samples)
	return r.samples[((r.head-1-n)%size+size)%size]
}

func (r *ring) ordered() []Sample {
	out := make([]Sample, 0, len(r.samples))
	out = append(out, r.samples[r.head:]...)
	return append(out, r.samples[:r.head]...)
}

// HistoricalBuffer keeps the last values read from (get) and written to
// (set) one signal. Both rings keep a constant length. It is not safe for
// concurrent use; the control tick serializes access.
type HistoricalBuffer struct {
	name string
	get  ring
	set  ring
}

func NewHistoricalBuffer(name string, capacity int) *HistoricalBuffer {
	capacity = max(capacity, minDataPoints)
	return &HistoricalBuffer{
		name: name,
		get:  newRing(capacity),
		set:  newRing(capacity),
	}
}

func (h *HistoricalBuffer) Name() string {
	return h.name
}

// Len returns the fixed capacity of each ring
func (h *HistoricalBuffer) Len() int {
	return len(h.get.samples)
}

func (h *HistoricalBuffer) AppendGet(t time.Duration, v float64) {
	h.get.push(Sample{Time: t, Value: v, Valid: true})
}

func (h *HistoricalBuffer) AppendSet(t time.Duration, v float64) {
	h.set.push(Sample{Time: t, Value: v, Valid: true})
}

func (h *HistoricalBuffer) LastGet() (float64, bool) {
	s := h.get.at(0)
	return s.Value, s.Valid
}

func (h *HistoricalBuffer) LastSet() (float64, bool) {
	s := h.set.at(0)
	return s.Value, s.Valid
}

func (h *HistoricalBuffer) PreviousGet() (float64, bool) {
	s := h.get.at(1)
	return s.Value, s.Valid
}

func (h *HistoricalBuffer) PreviousSet() (float64, bool) {
	s := h.set.at(1)
	return s.Value, s.Valid
}

// Snapshot copies both rings, oldest first.
func (h *HistoricalBuffer) Snapshot() (get, set []Sample) {
	return h.get.ordered(), h.set.ordered()
}
