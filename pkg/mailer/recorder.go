package mailer

import (
	"context"
	"fmt"
	"sync"
)

// Recorder is an in-memory Dispatcher that keeps every call. Handles are
// deterministic: "<template>:<email>:<n>".
type Recorder struct {
	mu        sync.Mutex
	Sent      []Message
	Cancelled []string
	// SendErr and CancelErr are returned when set.
	SendErr   error
	CancelErr error
	seq       int
}

func (r *Recorder) Send(_ context.Context, msg Message) ([]MessageID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SendErr != nil {
		return nil, r.SendErr
	}
	msg.Recipients = Unique(msg.Recipients)
	r.Sent = append(r.Sent, msg)
	ids := make([]MessageID, 0, len(msg.Recipients))
	for _, email := range msg.Recipients {
		r.seq++
		ids = append(ids, MessageID{Email: email, ID: fmt.Sprintf("%s:%s:%d", msg.Template, email, r.seq)})
	}
	return ids, nil
}

func (r *Recorder) Cancel(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CancelErr != nil {
		return r.CancelErr
	}
	r.Cancelled = append(r.Cancelled, ids...)
	return nil
}

// ByTemplate returns the recorded messages using template.
func (r *Recorder) ByTemplate(template string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.Sent {
		if m.Template == template {
			out = append(out, m)
		}
	}
	return out
}

// CancelledIDs returns a copy of the cancelled handles.
func (r *Recorder) CancelledIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Cancelled...)
}
