package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

// Templates found in the email templates directory.
const (
	TemplateWelcome           = "welcome"
	TemplateCertificateIssued = "certificate_issued"
)

var mailTemplates templateSet

type (
	// EmailMessage is a notification to learners. It is either templated or carries a plain Text body.
	EmailMessage struct {
		To       []mail.Address
		Subject  string
		Template string // file name without extension
		Data     interface{}
		Category string // delivery tag; defaults to Template

		Text string
		HTML string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	// layoutData is what the "_base" layouts and every template receive.
	layoutData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	templateSet struct {
		mu   sync.RWMutex
		text map[string]*texttmpl.Template
		html map[string]*htmltmpl.Template
	}
)

func (ts *templateSet) lookup(name string) (*texttmpl.Template, *htmltmpl.Template) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.text[name], ts.html[name]
}

func (ts *templateSet) replace(text map[string]*texttmpl.Template, html map[string]*htmltmpl.Template) {
	ts.mu.Lock()
	ts.text, ts.html = text, html
	ts.mu.Unlock()
}

// Render executes the message template into Text and HTML. Plain messages are left untouched.
func (m *EmailMessage) Render(conf *Config) error {
	if m.Template == "" {
		return nil
	}
	text, html := mailTemplates.lookup(m.Template)
	if text == nil && html == nil {
		return errors.Errorf("unknown email template %q", m.Template)
	}

	data := layoutData{AppName: conf.AppName, FrontendBaseURL: conf.FrontendBaseURL, Data: m.Data}
	var buf bytes.Buffer
	if text != nil {
		if err := text.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "executing %s.txt", m.Template)
		}
		m.Text = buf.String()
	}
	if html != nil {
		buf.Reset()
		if err := html.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "executing %s.gohtml", m.Template)
		}
		m.HTML = buf.String()
	}
	return nil
}

// Deliverable reports whether the message has somewhere to go and something to say.
func (m *EmailMessage) Deliverable() bool {
	return len(m.To) > 0 && (m.Text != "" || m.HTML != "")
}

func (m *EmailMessage) Tag() string {
	if m.Category != "" {
		return m.Category
	}
	return m.Template
}

// ParseEmailTemplates loads every "<name>.txt" and "<name>.gohtml" of dir on top of its "_base" layout.
// Broken templates are logged and skipped. With strict, executing a template with a missing key fails.
func ParseEmailTemplates(fsys fs.FS, dir string, strict bool, logger Logger) {
	text := make(map[string]*texttmpl.Template)
	html := make(map[string]*htmltmpl.Template)

	paths, err := fs.Glob(fsys, path.Join(dir, "*"))
	if err != nil {
		logger.Error(fmt.Sprintf("core.ParseEmailTemplates: %v", err), err)
	}

	for _, fp := range paths {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		ext := path.Ext(fname)
		name := strings.TrimSuffix(fname, ext)

		switch ext {
		case ".txt":
			tmpl, err := texttmpl.ParseFS(fsys, path.Join(dir, "_base.txt"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fp, err), err)
				continue
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			text[name] = tmpl
		case ".gohtml":
			tmpl, err := htmltmpl.ParseFS(fsys, path.Join(dir, "_base.gohtml"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("core.ParseEmailTemplates(%s): %v", fp, err), err)
				continue
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			html[name] = tmpl
		}
	}

	mailTemplates.replace(text, html)
}
