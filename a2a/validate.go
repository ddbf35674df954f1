package a2a

import (
	"errors"
	"fmt"
)

// Validate checks that the message is complete and every part is well formed.
// All problems are reported together.
func (m *Message) Validate() error {
	var errs []error
	if m.MessageID == "" {
		errs = append(errs, errors.New("messageId is required"))
	}
	if !m.Role.IsValid() {
		errs = append(errs, fmt.Errorf("role %q must be %q or %q", m.Role, RoleUser, RoleAgent))
	}
	if len(m.Parts) == 0 {
		errs = append(errs, errors.New("at least one part is required"))
	}
	for i := range m.Parts {
		if err := m.Parts[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("parts[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks that exactly the field selected by Kind is populated.
func (p *Part) Validate() error {
	hasFile, hasData := p.File != nil, p.Data != nil
	switch p.Kind {
	case KindTextPart:
		if hasFile || hasData {
			return errors.New("text part must not carry file or data")
		}
	case KindFilePart:
		if !hasFile {
			return errors.New("file part requires file")
		}
		if p.Text != "" || hasData {
			return errors.New("file part must not carry text or data")
		}
		return p.File.Validate()
	case KindDataPart:
		if !hasData {
			return errors.New("data part requires data")
		}
		if p.Text != "" || hasFile {
			return errors.New("data part must not carry text or file")
		}
	case "":
		return errors.New("part kind is required")
	default:
		return fmt.Errorf("unknown part kind %q", p.Kind)
	}
	return nil
}

// Validate checks that the file is referenced by exactly one of uri or bytes.
func (f *FilePart) Validate() error {
	switch {
	case f.URI == "" && f.Bytes == "":
		return errors.New("file requires uri or bytes")
	case f.URI != "" && f.Bytes != "":
		return errors.New("file must not set both uri and bytes")
	}
	return nil
}

func (t *Task) Validate() error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, errors.New("task id is required"))
	}
	if t.ContextID == "" {
		errs = append(errs, errors.New("contextId is required"))
	}
	if err := t.Status.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (ts *TaskStatus) Validate() error {
	if !ts.State.IsValid() {
		return fmt.Errorf("unknown task state %q", ts.State)
	}
	if ts.Timestamp != nil {
		if _, err := ts.GetTimestamp(); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// Validate requires a webhook URL.
func (c *PushNotificationConfig) Validate() error {
	if c.URL == "" {
		return errors.New("push notification url is required")
	}
	return nil
}
