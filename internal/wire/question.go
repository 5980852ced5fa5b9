package wire

import "encoding/binary"

// Question is a view {owner-name, type, class} positioned inside a Message.
type Question struct {
	Name  Name
	Type  Type
	Class Class

	// encodedLen is the total wire length of this question (name + 4).
	encodedLen int
}

// EncodedLen returns the number of bytes this question occupies in the
// message buffer.
func (q Question) EncodedLen() int { return q.encodedLen }

// QuestionIterator walks the question section of a Message.
type QuestionIterator struct {
	buf       []byte
	remaining int
	offset    int
	cur       Question
	err       error
}

// Next decodes the next question, returning false at end of section or on
// first error (retrievable via Err).
func (it *QuestionIterator) Next() bool {
	if it.err != nil || it.remaining == 0 {
		return false
	}
	name, err := decodeName(it.buf, it.offset)
	if err != nil {
		it.err = err
		return false
	}
	tcOffset := it.offset + name.EncodedLen
	if tcOffset+4 > len(it.buf) {
		it.err = errTruncated("question type/class")
		return false
	}
	typ := Type(binary.BigEndian.Uint16(it.buf[tcOffset : tcOffset+2]))
	class := Class(binary.BigEndian.Uint16(it.buf[tcOffset+2 : tcOffset+4]))
	encLen := name.EncodedLen + 4

	it.cur = Question{Name: name, Type: typ, Class: class, encodedLen: encLen}
	it.offset += encLen
	it.remaining--
	return true
}

// Question returns the question decoded by the most recent Next call.
func (it *QuestionIterator) Question() Question { return it.cur }

// Err returns the first decode error encountered, if any.
func (it *QuestionIterator) Err() error { return it.err }
