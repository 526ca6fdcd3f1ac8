// Package netstatus decodes network-status consensus and vote documents
// into the model used by the checker.
package netstatus

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"dirdoctor/internal/model"
)

var (
	// ErrUnknownDocument is returned for bodies that are not directory
	// documents at all.
	ErrUnknownDocument = errors.New("netstatus: not a directory document")

	// ErrTruncated means a document header was announced but its body
	// cannot be produced. Callers must stop consuming the scanner.
	ErrTruncated = errors.New("netstatus: document truncated")
)

const versionKeyword = "network-status-version"

// Scanner iterates over the documents of one response body. A response may
// carry several concatenated documents.
type Scanner struct {
	class model.DocumentClass
	docs  [][]string
	pos   int
	err   error
}

// NewScanner splits body into documents. The class is a hint used in error
// messages; the document's own vote-status decides what is produced.
func NewScanner(body []byte, class model.DocumentClass) *Scanner {
	s := &Scanner{class: class}
	lines := splitLines(body)
	if len(lines) == 0 {
		s.err = ErrUnknownDocument
		return s
	}

	if keyword(lines[0]) != versionKeyword {
		// Some other directory object; hand it out whole.
		s.docs = [][]string{lines}
		return s
	}

	var cur []string
	for _, line := range lines {
		if keyword(line) == versionKeyword && cur != nil {
			s.docs = append(s.docs, cur)
			cur = nil
		}
		cur = append(cur, line)
	}
	s.docs = append(s.docs, cur)
	return s
}

// More reports whether the body announced another document.
func (s *Scanner) More() bool {
	return s.err == nil && s.pos < len(s.docs)
}

// Err returns the error that ended the scan, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Next decodes the next document. Errors wrapping ErrTruncated or
// ErrUnknownDocument end the scan; other errors only concern the current
// document.
func (s *Scanner) Next() (model.Descriptor, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.pos >= len(s.docs) {
		return nil, fmt.Errorf("no more %s documents: %w", s.class, ErrTruncated)
	}
	doc := s.docs[s.pos]
	s.pos++

	if keyword(doc[0]) != versionKeyword {
		return &model.Unrecognized{Type: keyword(doc[0])}, nil
	}

	d, err := parseStatus(doc)
	if err != nil && (errors.Is(err, ErrTruncated) || errors.Is(err, ErrUnknownDocument)) {
		s.err = err
	}
	return d, err
}

// Decode returns every document of body, stopping at the first error.
func Decode(body []byte, class model.DocumentClass) ([]model.Descriptor, error) {
	s := NewScanner(body, class)
	var out []model.Descriptor
	for s.More() {
		d, err := s.Next()
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	if err := s.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func splitLines(body []byte) []string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	raw := bytes.Split(body, []byte("\n"))
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = bytes.TrimRight(l, "\r")
		if len(l) == 0 {
			continue
		}
		lines = append(lines, string(l))
	}
	return lines
}

func keyword(line string) string {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}
