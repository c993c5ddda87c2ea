package channel

import (
	"time"

	"github.com/google/uuid"

	"github.com/ruriclub/supportdesk/internal/model"
)

// Status is the delivery state of a transcript entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Entry is one line of a transcript.
type Entry struct {
	LocalID string
	Message model.Message
	Status  Status
	// Local marks messages composed by this client instance.
	Local bool
	// Synced marks entries known to correspond to a stored backend row.
	Synced bool
}

// Transcript is the append-only local copy of one conversation. Entries
// keep the order in which they were appended; nothing is ever re-sorted by
// timestamp.
//
// A Transcript is not safe for concurrent use. Its owner serializes access.
type Transcript struct {
	entries []Entry
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Submit appends msg as a pending local send and returns its local id.
func (t *Transcript) Submit(msg model.Message) string {
	id := uuid.NewString()
	if msg.Origin == "" {
		msg.Origin = model.OriginHuman
	}
	t.entries = append(t.entries, Entry{LocalID: id, Message: msg, Status: StatusPending, Local: true})
	return id
}

// Confirm marks a pending send as delivered. stored replaces the local
// copy in place. synced tells whether stored came from the backend or is a
// locally synthesized echo.
func (t *Transcript) Confirm(localID string, stored model.Message, synced bool) bool {
	e := t.find(localID)
	if e == nil {
		return false
	}
	if stored.Origin == "" {
		stored.Origin = e.Message.Origin
	}
	e.Message = stored
	e.Status = StatusSent
	e.Synced = synced
	return true
}

// Fail marks a pending send as failed. The composed body stays as it was.
func (t *Transcript) Fail(localID string) bool {
	e := t.find(localID)
	if e == nil {
		return false
	}
	e.Status = StatusFailed
	return true
}

// AppendSystem appends a locally generated notice.
func (t *Transcript) AppendSystem(body string, at time.Time) string {
	id := uuid.NewString()
	t.entries = append(t.entries, Entry{
		LocalID: id,
		Message: model.Message{Body: body, CreatedAt: model.NewTimestamp(at), ChatType: model.ChatTypeSystem, Origin: model.OriginSystem},
		Status:  StatusSent,
	})
	return id
}

// AppendReceived appends a message delivered in a response, such as an AI
// reply. It is never reconciled against fetched history.
func (t *Transcript) AppendReceived(msg model.Message) string {
	id := uuid.NewString()
	t.entries = append(t.entries, Entry{LocalID: id, Message: msg, Status: StatusSent})
	return id
}

// Merge folds fetched history into the transcript and returns the number
// of appended entries.
//
// Each fetched row is handled in order:
//   - skipped if an identical synced row (sender, receiver, body and
//     created_at, counted by occurrence) is already present;
//   - otherwise reconciled with the oldest unsynced local send that has the
//     same sender, receiver and body, which keeps its position;
//   - otherwise appended.
func (t *Transcript) Merge(fetched []model.Message) int {
	present := make(map[rowKey]int)
	for _, e := range t.entries {
		if e.Synced {
			present[keyOf(e.Message)]++
		}
	}

	seen := make(map[rowKey]int)
	added := 0
	for _, m := range fetched {
		k := keyOf(m)
		seen[k]++
		if seen[k] <= present[k] {
			continue
		}
		if e := t.oldestUnsynced(m); e != nil {
			if m.Origin == "" {
				m.Origin = e.Message.Origin
			}
			e.Message = m
			e.Status = StatusSent
			e.Synced = true
			present[k]++
			continue
		}
		t.entries = append(t.entries, Entry{LocalID: uuid.NewString(), Message: m, Status: StatusSent, Synced: true})
		present[k]++
		added++
	}
	return added
}

// Entries returns a copy of the transcript.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Messages returns the messages in transcript order.
func (t *Transcript) Messages() []model.Message {
	out := make([]model.Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Message
	}
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// LastTimestamp returns the newest created_at seen in the transcript.
func (t *Transcript) LastTimestamp() time.Time {
	var last time.Time
	for _, e := range t.entries {
		if e.Message.CreatedAt.After(last) {
			last = e.Message.CreatedAt.Time
		}
	}
	return last
}

func (t *Transcript) find(localID string) *Entry {
	for i := range t.entries {
		if t.entries[i].LocalID == localID {
			return &t.entries[i]
		}
	}
	return nil
}

// oldestUnsynced finds the first local send matching m that has not been
// tied to a backend row. Failed sends stay as the user's record of the
// failure and are not matched.
func (t *Transcript) oldestUnsynced(m model.Message) *Entry {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.Local || e.Synced || e.Status == StatusFailed {
			continue
		}
		if e.Message.SenderID == m.SenderID && e.Message.ReceiverID == m.ReceiverID && e.Message.Body == m.Body {
			return e
		}
	}
	return nil
}

type rowKey struct {
	sender, receiver int64
	body             string
	at               int64
}

func keyOf(m model.Message) rowKey {
	return rowKey{sender: m.SenderID, receiver: m.ReceiverID, body: m.Body, at: m.CreatedAt.UnixNano()}
}
