package app

import (
	"bytes"
	"fmt"
	"text/template"
)

const (
	DefaultSubscriberSubject = `Your {{.EmailType}}`
	DefaultSubscriberBody    = `Hello {{.Email}}, this is your {{.EmailType}}!`
	DefaultGroupSubject      = `Group '{{.GroupName}}' notification`
	DefaultGroupBody         = `Hello {{.Email}}, this is your group '{{.GroupName}}' alert.`
)

// MessageData is the data available to subject and body templates.
type MessageData struct {
	Email     string
	EmailType string
	GroupName string
}

// Templates renders notification subjects and bodies.
type Templates struct {
	subscriberSubject *template.Template
	subscriberBody    *template.Template
	groupSubject      *template.Template
	groupBody         *template.Template
}

// NewTemplates parses the four message templates.
func NewTemplates(subscriberSubject, subscriberBody, groupSubject, groupBody string) (*Templates, error) {
	var t Templates
	var err error
	if t.subscriberSubject, err = template.New("subscriber_subject").Parse(subscriberSubject); err != nil {
		return nil, fmt.Errorf("parse subscriber subject template: %w", err)
	}
	if t.subscriberBody, err = template.New("subscriber_body").Parse(subscriberBody); err != nil {
		return nil, fmt.Errorf("parse subscriber body template: %w", err)
	}
	if t.groupSubject, err = template.New("group_subject").Parse(groupSubject); err != nil {
		return nil, fmt.Errorf("parse group subject template: %w", err)
	}
	if t.groupBody, err = template.New("group_body").Parse(groupBody); err != nil {
		return nil, fmt.Errorf("parse group body template: %w", err)
	}
	return &t, nil
}

// DefaultTemplates returns the built-in message templates.
func DefaultTemplates() *Templates {
	t, err := NewTemplates(DefaultSubscriberSubject, DefaultSubscriberBody, DefaultGroupSubject, DefaultGroupBody)
	if err != nil {
		panic(err) // built-in templates are constants
	}
	return t
}

// Subscriber renders the subject and body of a direct notification.
func (t *Templates) Subscriber(data MessageData) (subject, body string, err error) {
	return render(t.subscriberSubject, t.subscriberBody, data)
}

// Group renders the subject and body of a group notification.
func (t *Templates) Group(data MessageData) (subject, body string, err error) {
	return render(t.groupSubject, t.groupBody, data)
}

func render(subjectTmpl, bodyTmpl *template.Template, data MessageData) (string, string, error) {
	var subject, body bytes.Buffer
	if err := subjectTmpl.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := bodyTmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}
