package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"sfex/internal/config"
)

// InboundMessage is one unseen mailbox message reduced to the fields
// the issue monitor needs.
type InboundMessage struct {
	From       string
	Subject    string
	MessageID  string
	ReceivedAt time.Time
}

// Mailbox fetches unseen messages; fetched messages are marked seen so
// the next poll skips them.
type Mailbox interface {
	UnseenMessages(ctx context.Context) ([]InboundMessage, error)
}

type IMAPMailbox struct {
	cfg config.MailConfig
}

func NewIMAPMailbox(cfg config.MailConfig) *IMAPMailbox {
	return &IMAPMailbox{cfg: cfg}
}

// UnseenMessages opens a fresh session per poll. Issue mail volume is
// low enough that connection reuse buys nothing over the simplicity of
// a stateless cycle.
func (m *IMAPMailbox) UnseenMessages(ctx context.Context) ([]InboundMessage, error) {
	addr := fmt.Sprintf("%s:%d", m.cfg.IMAPHost, m.cfg.IMAPPort)
	c, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial imap server %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(m.cfg.IMAPUsername, m.cfg.IMAPPassword); err != nil {
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, len(ids))
	if err := c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages); err != nil {
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}

	var out []InboundMessage
	for msg := range messages {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg.Envelope == nil {
			continue
		}
		out = append(out, InboundMessage{
			From:       envelopeFrom(msg.Envelope),
			Subject:    msg.Envelope.Subject,
			MessageID:  msg.Envelope.MessageId,
			ReceivedAt: msg.Envelope.Date,
		})
	}

	markSeen := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.Store(seqset, markSeen, []interface{}{imap.SeenFlag}, nil); err != nil {
		return nil, fmt.Errorf("failed to mark messages seen: %w", err)
	}

	return out, nil
}

func envelopeFrom(envelope *imap.Envelope) string {
	if len(envelope.From) == 0 {
		return ""
	}
	from := envelope.From[0]
	return strings.ToLower(from.MailboxName + "@" + from.HostName)
}
