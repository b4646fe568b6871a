package proto

import (
	"fmt"
	"strings"
)

// MsgType classifies mailbox traffic between workers and the commander.
type MsgType string

const (
	// MsgCommand carries a commander directive to a worker.
	MsgCommand MsgType = "command"

	// MsgEvidence carries one worker's conclusion to its peers.
	MsgEvidence MsgType = "evidence"

	// MsgFeedback carries a worker's response back to the commander.
	MsgFeedback MsgType = "feedback"
)

// ParseMsgType validates a mailbox message type string.
func ParseMsgType(s string) (MsgType, error) {
	switch t := MsgType(strings.ToLower(strings.TrimSpace(s))); t {
	case MsgCommand, MsgEvidence, MsgFeedback:
		return t, nil
	default:
		return "", fmt.Errorf("unknown message type: %q", s)
	}
}

// MailboxMessage is one unit of asynchronous traffic between debate
// participants. Messages are consumed at most once per receiver.
type MailboxMessage struct {
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
	Type     MsgType `json:"type"`
	Content  string  `json:"content"`

	// Seq is the mailbox-assigned creation order, unique per session.
	Seq int `json:"seq"`
}

func (m MailboxMessage) String() string {
	return fmt.Sprintf("%s->%s [%s] #%d", m.Sender, m.Receiver, m.Type, m.Seq)
}
