// Package wire implements a zero-copy, in-place view over raw DNS message
// bytes: a Message never rebuilds its buffer to answer a read, and supports
// exactly two mutations in place (transaction id rewrite, TTL rewrite) that
// leave the remaining bytes untouched. This is the representation the
// loading cache and servers share, so a cache hit can be re-served by
// rewriting 6 bytes of a stored buffer rather than re-encoding a message.
package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

const headerLen = 12

// Message is a view over a raw DNS message buffer. Decoding is total: any
// buffer of at least headerLen bytes parses into a Message whose header
// fields are directly readable; malformed questions/records only surface an
// error when iterated, per the "errors surface on first use" parse
// contract.
type Message struct {
	buf []byte
}

// FromBytes wraps buf as a Message. It does not copy; callers that need to
// retain the Message beyond the lifetime of buf must Clone it first.
func FromBytes(buf []byte) (Message, error) {
	if len(buf) < headerLen {
		return Message{}, xerrors.MalformedMessage("message shorter than header (", len(buf), " bytes)")
	}
	return Message{buf: buf}, nil
}

// Bytes returns the underlying buffer. Callers must not retain it across a
// mutation of m without being aware the returned slice aliases m's storage.
func (m Message) Bytes() []byte { return m.buf }

// Len returns the buffer length.
func (m Message) Len() int { return len(m.buf) }

// Clone returns a Message backed by a fresh copy of the buffer, safe to
// retain and mutate independently of the source.
func (m Message) Clone() Message {
	cp := make([]byte, len(m.buf))
	copy(cp, m.buf)
	return Message{buf: cp}
}

// Equal reports whether two messages have byte-identical buffers.
func (m Message) Equal(other Message) bool {
	return bytes.Equal(m.buf, other.buf)
}

// ID returns the 16-bit transaction id.
func (m Message) ID() uint16 {
	return binary.BigEndian.Uint16(m.buf[0:2])
}

// SetID rewrites the transaction id in place.
func (m Message) SetID(id uint16) {
	binary.BigEndian.PutUint16(m.buf[0:2], id)
}

// Flags returns the header flags word.
func (m Message) Flags() Flags {
	return Flags(binary.BigEndian.Uint16(m.buf[2:4]))
}

// QDCount, ANCount, NSCount, ARCount return the header section counts.
func (m Message) QDCount() uint16 { return binary.BigEndian.Uint16(m.buf[4:6]) }
func (m Message) ANCount() uint16 { return binary.BigEndian.Uint16(m.buf[6:8]) }
func (m Message) NSCount() uint16 { return binary.BigEndian.Uint16(m.buf[8:10]) }
func (m Message) ARCount() uint16 { return binary.BigEndian.Uint16(m.buf[10:12]) }

// NormalizedKey returns a cache key: a byte string equal to the message's
// buffer with the transaction id zeroed, so two requests differing only in
// id normalize to the same key (spec section 3/8).
func (m Message) NormalizedKey() string {
	cp := make([]byte, len(m.buf))
	copy(cp, m.buf)
	cp[0], cp[1] = 0, 0
	return string(cp)
}

// Questions returns an iterator over the question section.
func (m Message) Questions() *QuestionIterator {
	return &QuestionIterator{buf: m.buf, remaining: int(m.QDCount()), offset: headerLen}
}

// FirstQuestion is a convenience accessor for the common case of a
// single-question message (every query this system originates or forwards
// has exactly one).
func (m Message) FirstQuestion() (Question, error) {
	it := m.Questions()
	if !it.Next() {
		if it.Err() != nil {
			return Question{}, it.Err()
		}
		return Question{}, xerrors.MalformedMessage("message has no question")
	}
	return it.Question(), it.Err()
}

// sectionAfterQuestions walks past the question section, returning the byte
// offset where the answer section begins.
func (m Message) sectionAfterQuestions() (int, error) {
	it := m.Questions()
	for it.Next() {
	}
	if it.Err() != nil {
		return 0, it.Err()
	}
	return it.offset, nil
}

// Answers returns an iterator over the answer section.
func (m Message) Answers() (*RRIterator, error) {
	off, err := m.sectionAfterQuestions()
	if err != nil {
		return nil, err
	}
	return &RRIterator{buf: m.buf, remaining: int(m.ANCount()), offset: off}, nil
}

// answersEnd walks the answer section and returns the offset immediately
// following it (used to locate the authority section).
func (m Message) answersEnd() (int, error) {
	it, err := m.Answers()
	if err != nil {
		return 0, err
	}
	for it.Next() {
	}
	if it.Err() != nil {
		return 0, it.Err()
	}
	return it.offset, nil
}

// Authorities returns an iterator over the authority section.
func (m Message) Authorities() (*RRIterator, error) {
	off, err := m.answersEnd()
	if err != nil {
		return nil, err
	}
	return &RRIterator{buf: m.buf, remaining: int(m.NSCount()), offset: off}, nil
}

func (m Message) authoritiesEnd() (int, error) {
	it, err := m.Authorities()
	if err != nil {
		return 0, err
	}
	for it.Next() {
	}
	if it.Err() != nil {
		return 0, it.Err()
	}
	return it.offset, nil
}

// Additionals returns an iterator over the additional section.
func (m Message) Additionals() (*RRIterator, error) {
	off, err := m.authoritiesEnd()
	if err != nil {
		return nil, err
	}
	return &RRIterator{buf: m.buf, remaining: int(m.ARCount()), offset: off}, nil
}
