package emailsvc

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
)

// outbox keeps every message the console services delivered.
var outbox struct {
	sync.Mutex
	msgs []core.EmailMessage
}

// SentMessages returns a copy of the messages delivered by the console services.
func SentMessages() []core.EmailMessage {
	outbox.Lock()
	defer outbox.Unlock()
	msgs := make([]core.EmailMessage, len(outbox.msgs))
	copy(msgs, outbox.msgs)
	return msgs
}

// ClearSentMessages empties the console outbox.
func ClearSentMessages() {
	outbox.Lock()
	defer outbox.Unlock()
	outbox.msgs = outbox.msgs[:0]
}

func subjectPrefix(conf *core.Config) string {
	return "[" + conf.AppName + "] "
}

type consoleService struct {
	conf   *core.Config
	logger core.Logger
	from   mail.Address
	out    io.Writer // nil: record only
	sync   bool
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService prints the messages on stdout instead of sending them.
func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		conf:   conf,
		logger: logger,
		from:   conf.DefaultFromEmail(),
		out:    os.Stdout,
	}
}

// NewConsoleServiceMock records the messages synchronously without printing them.
func NewConsoleServiceMock(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		conf:   conf,
		logger: logger,
		from:   conf.DefaultFromEmail(),
		sync:   true,
	}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.sync {
			svc.deliver(msg)
			continue
		}
		go svc.deliver(msg)
	}
}

func (svc *consoleService) deliver(msg *core.EmailMessage) {
	if err := msg.Render(svc.conf); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email %q: %v", msg.Template, err), err)
		return
	}
	if !msg.Deliverable() {
		svc.logger.Warn(fmt.Sprintf("dropping email %q: no recipient or no content", msg.Subject))
		return
	}

	if svc.out != nil {
		raw, err := svc.format(*msg)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("formatting email: %v", err), err)
			return
		}
		if _, err = io.WriteString(svc.out, raw); err != nil {
			svc.logger.Error(fmt.Sprintf("writing email: %v", err), err)
			return
		}
	}

	outbox.Lock()
	outbox.msgs = append(outbox.msgs, *msg)
	outbox.Unlock()
}

// format renders msg as a MIME message, multipart/alternative when it has an HTML body.
func (svc *consoleService) format(msg core.EmailMessage) (string, error) {
	var b strings.Builder

	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	_, _ = fmt.Fprintf(&b, "From: %s\r\n", svc.from.String())
	_, _ = fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	_, _ = fmt.Fprintf(&b, "Subject: %s\r\n", subjectPrefix(svc.conf)+msg.Subject)
	_, _ = fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	if tag := msg.Tag(); tag != "" {
		_, _ = fmt.Fprintf(&b, "X-Category: %s\r\n", tag)
	}
	_, _ = fmt.Fprint(&b, "MIME-Version: 1.0\r\n")

	if msg.HTML == "" {
		_, _ = fmt.Fprintf(&b, "Content-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", msg.Text)
		return b.String(), nil
	}

	w := multipart.NewWriter(&b)
	_, _ = fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", w.Boundary())
	parts := []struct{ ct, body string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ct}})
		if err != nil {
			return "", errors.Wrapf(err, "creating %s part", p.ct)
		}
		_, _ = fmt.Fprintf(pw, "%s\r\n", p.body)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart writer")
	}
	return b.String(), nil
}
