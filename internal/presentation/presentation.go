// Package presentation turns a transcript into display bubbles.
package presentation

import (
	"github.com/ruriclub/supportdesk/internal/channel"
	"github.com/ruriclub/supportdesk/internal/model"
)

const (
	// TimeLayout is how bubble times are shown.
	TimeLayout = "15:04"

	ownName    = "You"
	systemName = "System"
)

// Names maps sender ids to display names for senders whose messages do not
// carry one.
type Names map[int64]string

// Bubble is one rendered message.
type Bubble struct {
	IsOwn         bool
	DisplayName   string
	Body          string
	FormattedTime string
	Origin        model.Origin
	Status        channel.Status
}

// Render maps messages to bubbles for viewer. Ownership is decided by
// sender id alone, never by display name.
func Render(msgs []model.Message, viewer model.Identity, names Names) []Bubble {
	out := make([]Bubble, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, bubble(m, channel.StatusSent, viewer, names))
	}
	return out
}

// RenderTranscript is Render for transcript entries, keeping their
// delivery status.
func RenderTranscript(entries []channel.Entry, viewer model.Identity, names Names) []Bubble {
	out := make([]Bubble, 0, len(entries))
	for _, e := range entries {
		out = append(out, bubble(e.Message, e.Status, viewer, names))
	}
	return out
}

// IsOwn reports whether m was sent by viewer.
func IsOwn(m model.Message, viewer model.Identity) bool {
	return m.ResolvedOrigin() != model.OriginSystem && m.SenderID == viewer.ID
}

func bubble(m model.Message, status channel.Status, viewer model.Identity, names Names) Bubble {
	b := Bubble{
		IsOwn:  IsOwn(m, viewer),
		Body:   m.Body,
		Origin: m.ResolvedOrigin(),
		Status: status,
	}
	if !m.CreatedAt.IsZero() {
		b.FormattedTime = m.CreatedAt.Local().Format(TimeLayout)
	}

	switch {
	case b.IsOwn:
		b.DisplayName = ownName
	case b.Origin == model.OriginSystem:
		b.DisplayName = systemName
	case m.SenderName != "":
		b.DisplayName = m.SenderName
	case names[m.SenderID] != "":
		b.DisplayName = names[m.SenderID]
	default:
		b.DisplayName = "Unknown"
	}
	return b
}
