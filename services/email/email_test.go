package emailsvc

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis-elearning/oasis/core"
	appfs "github.com/oasis-elearning/oasis/fs"
	logsvc "github.com/oasis-elearning/oasis/services/logger"
)

func testConf() *core.Config {
	conf := &core.Config{AppName: "Oasis", FrontendBaseURL: "http://oasis.test", SendgridAPIKey: "key", TestMode: true}
	conf.SetDefaultFromEmail("Learning Team <learning@oasis.test>")
	return conf
}

func testLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

func welcomeMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:       []mail.Address{{Name: "Ada Lovelace", Address: "ada@oasis.test"}},
		Subject:  "Welcome aboard!",
		Template: core.TemplateWelcome,
		Data:     map[string]interface{}{"FirstName": "Ada", "Department": "Engineering"},
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := testConf()
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, testLogger(conf))
	ClearSentMessages()
	svc := NewConsoleServiceMock(conf, testLogger(conf))

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "bob@oasis.test"}}, Subject: "hi", Text: "hello Bob"},
		&core.EmailMessage{Subject: "no recipient", Text: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@oasis.test"}}, Subject: "no content"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@oasis.test"}}, Subject: "unknown", Template: "lol"},
		welcomeMessage(),
	)

	sent := SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello Bob", sent[0].Text)
	assert.Empty(t, sent[0].HTML)

	assert.Equal(t, core.TemplateWelcome, sent[1].Template)
	assert.Contains(t, sent[1].Text, "Hi Ada,")
	assert.Contains(t, sent[1].Text, "Engineering department")
	assert.Contains(t, sent[1].Text, "The Oasis team")
	assert.Contains(t, sent[1].HTML, `<a href="http://oasis.test/courses">`)

	ClearSentMessages()
	assert.Empty(t, SentMessages())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func TestConsoleService_format(t *testing.T) {
	conf := testConf()
	svc := &consoleService{conf: conf, logger: testLogger(conf), from: conf.DefaultFromEmail(), out: new(syncBuffer), sync: true}

	raw, err := svc.format(core.EmailMessage{
		To:       []mail.Address{{Address: "ada@oasis.test"}, {Address: "bob@oasis.test"}},
		Subject:  "Your certificate",
		Category: "certificate",
		Text:     "congrats",
		HTML:     "<p>congrats</p>",
	})
	require.NoError(t, err)
	assert.Contains(t, raw, `From: "Learning Team" <learning@oasis.test>`)
	assert.Contains(t, raw, "To: <ada@oasis.test>, <bob@oasis.test>\r\n")
	assert.Contains(t, raw, "Subject: [Oasis] Your certificate\r\n")
	assert.Contains(t, raw, "X-Category: certificate\r\n")
	assert.Contains(t, raw, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, raw, "<p>congrats</p>")

	raw, err = svc.format(core.EmailMessage{To: []mail.Address{{Address: "ada@oasis.test"}}, Subject: "plain", Text: "just text"})
	require.NoError(t, err)
	assert.NotContains(t, raw, "X-Category")
	assert.True(t, strings.HasSuffix(raw, "Content-Type: text/plain; charset=utf-8\r\n\r\njust text\r\n"))
}

func TestSendgridService_prepare(t *testing.T) {
	conf := testConf()
	svc := NewSendgridService(conf, testLogger(conf))

	m := svc.prepare(core.EmailMessage{
		To: []mail.Address{
			{Name: "Ada Lovelace", Address: "ada@oasis.test"},
			{Address: "bob@oasis.test"},
		},
		Subject:  "Your certificate",
		Template: core.TemplateCertificateIssued,
		Text:     "congrats",
	})

	assert.Equal(t, "learning@oasis.test", m.From.Address)
	assert.Equal(t, "Learning Team", m.From.Name)
	require.Len(t, m.Personalizations, 2)
	for i, addr := range []string{"ada@oasis.test", "bob@oasis.test"} {
		assert.Equal(t, "[Oasis] Your certificate", m.Personalizations[i].Subject)
		require.Len(t, m.Personalizations[i].To, 1)
		assert.Equal(t, addr, m.Personalizations[i].To[0].Address)
	}
	require.Len(t, m.Content, 1) // no html part without html content
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, []string{core.TemplateCertificateIssued}, m.Categories)
}

func TestSendgridService_deliver(t *testing.T) {
	conf := testConf()
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, testLogger(conf))
	svc := NewSendgridService(conf, testLogger(conf))

	var calls []rest.Request
	orig := sendgridAPIFunc
	t.Cleanup(func() { sendgridAPIFunc = orig })
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		calls = append(calls, req)
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	svc.deliver(&core.EmailMessage{Subject: "no recipient", Text: "dropped"})
	assert.Empty(t, calls)

	svc.deliver(welcomeMessage())
	require.Len(t, calls, 1)
	assert.Equal(t, rest.Method(http.MethodPost), calls[0].Method)
	assert.Equal(t, host+endpoint, calls[0].BaseURL)
	assert.Equal(t, "Bearer key", calls[0].Headers["Authorization"])
	assert.Contains(t, string(calls[0].Body), `"categories":["welcome"]`)
	assert.Contains(t, string(calls[0].Body), "Hi Ada,")
}
