package wire

import (
	"encoding/binary"
	"net"
)

// Builder constructs a DNS message header, question and (optionally)
// synthesized answer records from scratch. It never mutates an existing
// Message; it always produces a fresh buffer (mutation of an existing
// Message is limited to SetID/SetTTL, per the spec's in-place contract).
type Builder struct {
	id       uint16
	flags    Flags
	question struct {
		name  string
		typ   Type
		class Class
		set   bool
	}
	answers []builtAnswer
}

type builtAnswer struct {
	ttl uint32
	ip  net.IP // 4 or 16 bytes; type inferred from length
}

// NewBuilder starts a new message with the given transaction id.
func NewBuilder(id uint16) *Builder {
	return &Builder{id: id}
}

// SetFlags sets the header flags word.
func (b *Builder) SetFlags(f Flags) *Builder {
	b.flags = f
	return b
}

// SetQuestion sets the (single) question this message carries.
func (b *Builder) SetQuestion(name string, typ Type, class Class) *Builder {
	b.question.name = name
	b.question.typ = typ
	b.question.class = class
	b.question.set = true
	return b
}

// AddAnswerIP appends a synthesized A/AAAA answer pointing at the question
// name (via compression pointer to offset 12), with the given TTL. The
// record type (A vs AAAA) is inferred from the IP's encoded length.
func (b *Builder) AddAnswerIP(ip net.IP, ttl uint32) *Builder {
	b.answers = append(b.answers, builtAnswer{ttl: ttl, ip: ip})
	return b
}

// Build serializes the message into a fresh buffer.
func (b *Builder) Build() (Message, error) {
	var qnameBytes []byte
	if b.question.set {
		enc, err := EncodeName(b.question.name)
		if err != nil {
			return Message{}, err
		}
		qnameBytes = enc
	}

	qdcount := uint16(0)
	if b.question.set {
		qdcount = 1
	}

	buf := make([]byte, headerLen, headerLen+len(qnameBytes)+4+len(b.answers)*(2+2+2+4+2+4))
	binary.BigEndian.PutUint16(buf[0:2], b.id)
	binary.BigEndian.PutUint16(buf[2:4], uint16(b.flags))
	binary.BigEndian.PutUint16(buf[4:6], qdcount)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(b.answers)))
	binary.BigEndian.PutUint16(buf[8:10], 0)
	binary.BigEndian.PutUint16(buf[10:12], 0)

	if b.question.set {
		buf = append(buf, qnameBytes...)
		var tc [4]byte
		binary.BigEndian.PutUint16(tc[0:2], uint16(b.question.typ))
		binary.BigEndian.PutUint16(tc[2:4], uint16(b.question.class))
		buf = append(buf, tc[:]...)
	}

	for _, a := range b.answers {
		// Pointer to the question name at offset 12 (0xC0 0x0C).
		buf = append(buf, 0xC0, 0x0C)

		var typ Type
		var ip net.IP
		if v4 := a.ip.To4(); v4 != nil {
			typ = TypeA
			ip = v4
		} else {
			typ = TypeAAAA
			ip = a.ip.To16()
		}

		var fixed [10]byte
		binary.BigEndian.PutUint16(fixed[0:2], uint16(typ))
		binary.BigEndian.PutUint16(fixed[2:4], uint16(ClassIN))
		binary.BigEndian.PutUint32(fixed[4:8], a.ttl)
		binary.BigEndian.PutUint16(fixed[8:10], uint16(len(ip)))
		buf = append(buf, fixed[:]...)
		buf = append(buf, ip...)
	}

	return FromBytes(buf)
}

// BuildQuery is a convenience wrapper producing a simple recursive query.
func BuildQuery(id uint16, name string, typ Type, class Class) (Message, error) {
	flags := new(FlagsBuilder).SetRD(true).Build()
	return NewBuilder(id).SetFlags(flags).SetQuestion(name, typ, class).Build()
}

// BuildErrorResponse builds a synthetic response to a query that could not
// be processed normally: header-only (no question echoed) when echoQuestion
// is empty, matching spec scenario 5 (malformed input gets a bare 12-byte
// FORMERR header echoing only the id).
func BuildErrorResponse(id uint16, rcode RCode, echoQuestion *Question) (Message, error) {
	flags := new(FlagsBuilder).SetQR(true).SetRA(true).SetRCode(rcode).Build()
	bld := NewBuilder(id).SetFlags(flags)
	if echoQuestion != nil {
		bld.SetQuestion(echoQuestion.Name.String(), echoQuestion.Type, echoQuestion.Class)
	}
	return bld.Build()
}
