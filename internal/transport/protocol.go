package transport

import (
	"github.com/gosuda/temsim/internal/room"
)

// Server event types.
const (
	EventSnapshot = "snapshot"
	EventNotice   = "notice"
	EventHistory  = "history"
	EventAck      = "ack"
	EventError    = "error"
	EventWelcome  = "welcome"
)

// ClientMessage is the envelope received from websocket clients. Type is one
// of the action kinds; the sender's room, role and name come from the
// connection, never from the message.
type ClientMessage struct {
	Type      string `json:"type"`
	Threat    string `json:"threat,omitempty"`
	Option    string `json:"option,omitempty"`
	Approve   bool   `json:"approve,omitempty"`
	Question  string `json:"question,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Gauge     string `json:"gauge,omitempty"`
	Checklist string `json:"checklist,omitempty"`
	Index     int    `json:"index,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Action binds the message to the sender.
func (m ClientMessage) Action(role room.Role, name string) room.Action {
	return room.Action{
		Kind:      m.Type,
		Role:      role,
		Name:      name,
		Threat:    m.Threat,
		Option:    m.Option,
		Approve:   m.Approve,
		Question:  m.Question,
		Answer:    m.Answer,
		Gauge:     m.Gauge,
		Checklist: m.Checklist,
		Index:     m.Index,
		Text:      m.Text,
	}
}

// ServerEvent is pushed to clients for any room update.
type ServerEvent struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	Role     room.Role       `json:"role,omitempty"`
	User     string          `json:"user,omitempty"`
	Action   string          `json:"action,omitempty"`
	Code     string          `json:"code,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Snapshot *room.Snapshot  `json:"snapshot,omitempty"`
	Notice   *room.Notice    `json:"notice,omitempty"`
	History  []room.ChatLine `json:"history,omitempty"`
}

// ActionResult is the reply to an HTTP action.
type ActionResult struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

func resultOf(err error) ActionResult {
	if err == nil {
		return ActionResult{OK: true, Code: room.CodeOK}
	}
	return ActionResult{Code: room.Code(err), Reason: err.Error()}
}
