package channel

import (
	"testing"
	"time"

	"github.com/ruriclub/supportdesk/internal/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) model.Timestamp {
	return model.NewTimestamp(base.Add(time.Duration(sec) * time.Second))
}

func msg(sender, receiver int64, body string, sec int) model.Message {
	return model.Message{SenderID: sender, ReceiverID: receiver, Body: body, CreatedAt: at(sec)}
}

func bodies(tr *Transcript) []string {
	var out []string
	for _, m := range tr.Messages() {
		out = append(out, m.Body)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAppendOrderIsNotResortedByTimestamp(t *testing.T) {
	tr := NewTranscript()
	tr.Merge([]model.Message{msg(7, 4, "A", 1), msg(7, 4, "B", 3)})

	id := tr.Submit(model.Message{SenderID: 4, ReceiverID: 7, Body: "C", CreatedAt: at(3)})
	tr.Confirm(id, msg(4, 7, "C", 2), true)

	if got := bodies(tr); !equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("expected submission order A, B, C, got %v", got)
	}
}

func TestMergeReconcilesPendingSend(t *testing.T) {
	tr := NewTranscript()
	id := tr.Submit(model.Message{SenderID: 4, ReceiverID: 7, Body: "hello", CreatedAt: at(5)})

	added := tr.Merge([]model.Message{msg(4, 7, "hello", 6), msg(7, 4, "hi there", 7)})
	if added != 1 {
		t.Fatalf("expected only the reply to be appended, got %d", added)
	}
	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(entries), bodies(tr))
	}
	if entries[0].LocalID != id || entries[0].Status != StatusSent || !entries[0].Synced {
		t.Fatalf("pending send was not reconciled in place: %+v", entries[0])
	}
	if !entries[0].Message.CreatedAt.Equal(at(6).Time) {
		t.Fatalf("reconciled entry should carry the stored timestamp")
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	history := []model.Message{msg(7, 4, "A", 1), msg(4, 7, "B", 2)}
	tr := NewTranscript()
	tr.Merge(history)
	if n := tr.Merge(history); n != 0 {
		t.Fatalf("second merge appended %d entries", n)
	}
	if tr.Len() != 2 {
		t.Fatalf("expected 2 entries, got %v", bodies(tr))
	}
}

func TestMergeKeepsRepeatedIdenticalMessages(t *testing.T) {
	tr := NewTranscript()
	first := tr.Submit(model.Message{SenderID: 4, ReceiverID: 7, Body: "ok"})
	tr.Confirm(first, msg(4, 7, "ok", 1), true)
	tr.Submit(model.Message{SenderID: 4, ReceiverID: 7, Body: "ok"})

	tr.Merge([]model.Message{msg(4, 7, "ok", 1), msg(4, 7, "ok", 2)})

	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two ok entries, got %d", len(entries))
	}
	for i, e := range entries {
		if !e.Synced || e.Status != StatusSent {
			t.Fatalf("entry %d not synced: %+v", i, e)
		}
	}
	if !entries[1].Message.CreatedAt.Equal(at(2).Time) {
		t.Fatalf("second send should reconcile with the second stored row")
	}
}

func TestMergeReconcilesSynthesizedEcho(t *testing.T) {
	tr := NewTranscript()
	id := tr.Submit(model.Message{SenderID: 7, ReceiverID: 4, Body: "on it"})
	tr.Confirm(id, msg(7, 4, "on it", 9), false)

	if n := tr.Merge([]model.Message{msg(7, 4, "on it", 8)}); n != 0 {
		t.Fatalf("echo should reconcile, not duplicate; appended %d", n)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected one entry, got %v", bodies(tr))
	}
}

func TestFailKeepsBody(t *testing.T) {
	tr := NewTranscript()
	id := tr.Submit(model.Message{SenderID: 4, ReceiverID: 7, Body: "are you there?"})
	if !tr.Fail(id) {
		t.Fatalf("fail should find the entry")
	}
	e := tr.Entries()[0]
	if e.Status != StatusFailed || e.Message.Body != "are you there?" {
		t.Fatalf("failed entry altered: %+v", e)
	}

	// A failed send is never matched by a later fetch.
	tr.Merge([]model.Message{msg(4, 7, "are you there?", 3)})
	if tr.Len() != 2 || tr.Entries()[0].Status != StatusFailed {
		t.Fatalf("failed entry should stay failed: %+v", tr.Entries())
	}
}

func TestSystemEntriesAreNeverMatched(t *testing.T) {
	tr := NewTranscript()
	tr.AppendSystem("You are now connected to Alice.", base)
	tr.Merge([]model.Message{{Body: "You are now connected to Alice.", CreatedAt: at(1), ChatType: model.ChatTypeSystem}})
	if tr.Len() != 2 {
		t.Fatalf("system entry should not absorb fetched rows, got %d entries", tr.Len())
	}
}

func TestLastTimestamp(t *testing.T) {
	tr := NewTranscript()
	if !tr.LastTimestamp().IsZero() {
		t.Fatalf("empty transcript should have zero last timestamp")
	}
	tr.Merge([]model.Message{msg(7, 4, "A", 4), msg(7, 4, "B", 2)})
	if !tr.LastTimestamp().Equal(at(4).Time) {
		t.Fatalf("unexpected last timestamp %v", tr.LastTimestamp())
	}
}

func TestUnknownLocalIDIsIgnored(t *testing.T) {
	tr := NewTranscript()
	if tr.Confirm("nope", model.Message{}, true) || tr.Fail("nope") {
		t.Fatalf("unknown ids must not match")
	}
}
