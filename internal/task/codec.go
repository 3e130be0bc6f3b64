package task

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskfold/internal/errs"
)

const delimiter = "---"

// Frontmatter keys, in the order Encode writes them.
const (
	keyID      = "id"
	keyVersion = "version"
	keyStatus  = "status"
	keyDue     = "due"
	keyCreated = "created"
	keyUpdated = "updated"
	keyParent  = "parent_id"

	legacyKeyParent = "parent"
)

// ErrParse is matched by every *ParseError.
var ErrParse = errs.New(errs.Validation, "invalid task file")

// ParseError describes why a task file could not be decoded.
type ParseError struct {
	File   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.File, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.File, e.Reason)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp reads a timestamp in any recognized layout.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Decode parses a task file. The title comes from filename.
func Decode(data []byte, filename string) (*Task, error) {
	name := filepath.Base(filename)
	fail := func(reason string, err error) (*Task, error) {
		return nil, &ParseError{File: name, Reason: reason, Err: err}
	}
	if !IsTaskFile(name) {
		return fail("not a task file name", nil)
	}

	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.HasPrefix(text, delimiter+"\r\n") {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	if !strings.HasPrefix(text, delimiter+"\n") {
		return fail("missing frontmatter", nil)
	}

	front, body, ok := splitFrontmatter(text[len(delimiter)+1:])
	if !ok {
		return fail("unterminated frontmatter", nil)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(front), &doc); err != nil {
		return fail("malformed frontmatter", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fail("empty frontmatter", nil)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fail("frontmatter is not a mapping", nil)
	}

	t := &Task{
		Title: TitleFromFile(name),
		Notes: body,
	}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return fail("frontmatter keys must be scalars", nil)
		}
		key := k.Value
		if seen[key] {
			return fail(fmt.Sprintf("duplicate key %q", key), nil)
		}
		seen[key] = true

		if err := t.setField(key, v); err != nil {
			return fail(fmt.Sprintf("field %q", key), err)
		}
	}

	switch {
	case t.ID == "":
		return fail("missing id", nil)
	case t.Status == "":
		return fail("missing status", nil)
	case t.CreatedAt.IsZero():
		return fail("missing created timestamp", nil)
	case t.UpdatedAt.IsZero():
		return fail("missing updated timestamp", nil)
	}
	if t.Version == 0 {
		// Files written before the version key existed.
		t.Version = 1
	}
	return t, nil
}

func (t *Task) setField(key string, v *yaml.Node) error {
	switch key {
	case keyID:
		s, err := scalar(v)
		if err != nil {
			return err
		}
		t.ID = strings.TrimSpace(s)
	case keyVersion:
		s, err := scalar(v)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid schema version %q", s)
		}
		t.Version = n
	case keyStatus:
		s, err := scalar(v)
		if err != nil {
			return err
		}
		switch Status(s) {
		case Backlog, Completed:
			t.Status = Status(s)
		default:
			return fmt.Errorf("unknown status %q", s)
		}
	case keyDue:
		if isNull(v) {
			t.DueDate = nil
			return nil
		}
		ts, err := timestamp(v)
		if err != nil {
			return err
		}
		t.DueDate = &ts
	case keyCreated:
		ts, err := timestamp(v)
		if err != nil {
			return err
		}
		t.CreatedAt = ts
	case keyUpdated:
		ts, err := timestamp(v)
		if err != nil {
			return err
		}
		t.UpdatedAt = ts
	case keyParent, legacyKeyParent:
		if isNull(v) {
			return nil
		}
		s, err := scalar(v)
		if err != nil {
			return err
		}
		t.ParentID = strings.TrimSpace(s)
	default:
		t.Extra = append(t.Extra, Field{Key: key, Value: v})
	}
	return nil
}

// Encode renders a task file with a canonical key order followed by the
// unrecognized keys in the order they were read.
func Encode(t *Task) ([]byte, error) {
	if t.ID == "" {
		return nil, errs.New(errs.Validation, "task id is required")
	}
	if t.Status != Backlog && t.Status != Completed {
		return nil, errs.Errorf(errs.Validation, "unknown status %q", t.Status)
	}

	version := t.Version
	if version < SchemaVersion {
		version = SchemaVersion
	}

	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	add := func(key string, value *yaml.Node) {
		root.Content = append(root.Content, strNode(key), value)
	}
	add(keyID, strNode(t.ID))
	add(keyVersion, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(version)})
	add(keyStatus, strNode(string(t.Status)))
	if t.DueDate != nil {
		add(keyDue, timeNode(*t.DueDate))
	}
	add(keyCreated, timeNode(t.CreatedAt))
	add(keyUpdated, timeNode(t.UpdatedAt))
	if t.ParentID != "" {
		add(keyParent, strNode(t.ParentID))
	}
	for _, f := range t.Extra {
		if isKnownKey(f.Key) || f.Value == nil {
			continue
		}
		add(f.Key, f.Value)
	}

	var fm bytes.Buffer
	enc := yaml.NewEncoder(&fm)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}

	var out bytes.Buffer
	out.Grow(fm.Len() + len(t.Notes) + 16)
	out.WriteString(delimiter + "\n")
	out.Write(fm.Bytes())
	out.WriteString(delimiter + "\n\n")
	out.WriteString(t.Notes)
	out.WriteString("\n")
	return out.Bytes(), nil
}

// splitFrontmatter splits the text after the opening delimiter into the YAML
// block and the body. One blank line after the closing delimiter and the final
// newline belong to the file layout, not the body.
func splitFrontmatter(rest string) (front, body string, ok bool) {
	switch {
	case strings.HasPrefix(rest, delimiter+"\n"):
		body = rest[len(delimiter)+1:]
	case rest == delimiter:
	default:
		i := strings.Index(rest, "\n"+delimiter+"\n")
		if i >= 0 {
			front = rest[:i+1]
			body = rest[i+len(delimiter)+2:]
		} else if strings.HasSuffix(rest, "\n"+delimiter) {
			front = rest[:len(rest)-len(delimiter)]
		} else {
			return "", "", false
		}
	}
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimSuffix(body, "\n")
	return front, body, true
}

func isKnownKey(key string) bool {
	switch key {
	case keyID, keyVersion, keyStatus, keyDue, keyCreated, keyUpdated, keyParent, legacyKeyParent:
		return true
	}
	return false
}

func scalar(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", errors.New("expected a scalar value")
	}
	return n.Value, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && (n.Tag == "!!null" || n.Value == "")
}

func timestamp(n *yaml.Node) (time.Time, error) {
	s, err := scalar(n)
	if err != nil {
		return time.Time{}, err
	}
	return ParseTimestamp(s)
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func timeNode(t time.Time) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: t.UTC().Format(time.RFC3339Nano)}
}
