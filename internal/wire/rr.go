package wire

import "encoding/binary"

// RR is a view {name, type, class, ttl, rdlength, rdata} positioned inside a
// Message. Its encoded length equals name-length + 10 + rdlength.
type RR struct {
	Name     Name
	Type     Type
	Class    Class
	TTL      uint32
	RDLength uint16
	// RData is the raw rdata slice, borrowed from the message buffer.
	RData []byte

	// ttlOffset is the byte offset of the TTL field within the owning
	// message buffer, recovered so a cache layer can rewrite it in place.
	ttlOffset int
	// buf is the owning message buffer, needed to resolve compressed names
	// inside RDATA (e.g. CNAME, MX exchange, SOA mname/rname).
	buf []byte
	// encodedLen is the total wire length of this record.
	encodedLen int
}

// EncodedLen returns the number of bytes this record occupies.
func (r RR) EncodedLen() int { return r.encodedLen }

// TTLOffset returns the byte offset of this record's TTL field within its
// message's buffer.
func (r RR) TTLOffset() int { return r.ttlOffset }

// RRIterator walks a resource-record section (answer, authority, or
// additional) of a Message.
type RRIterator struct {
	buf       []byte
	remaining int
	offset    int
	cur       RR
	err       error
}

// Next decodes the next record, returning false at end of section or on
// first error.
func (it *RRIterator) Next() bool {
	if it.err != nil || it.remaining == 0 {
		return false
	}
	start := it.offset
	name, err := decodeName(it.buf, start)
	if err != nil {
		it.err = err
		return false
	}
	fixedOff := start + name.EncodedLen
	if fixedOff+10 > len(it.buf) {
		it.err = errTruncated("RR fixed fields")
		return false
	}
	typ := Type(binary.BigEndian.Uint16(it.buf[fixedOff : fixedOff+2]))
	class := Class(binary.BigEndian.Uint16(it.buf[fixedOff+2 : fixedOff+4]))
	ttlOffset := fixedOff + 4
	ttl := binary.BigEndian.Uint32(it.buf[ttlOffset : ttlOffset+4])
	rdlength := binary.BigEndian.Uint16(it.buf[ttlOffset+4 : ttlOffset+6])
	rdataOffset := ttlOffset + 6
	if rdataOffset+int(rdlength) > len(it.buf) {
		it.err = errTruncated("RDATA")
		return false
	}

	encLen := name.EncodedLen + 10 + int(rdlength)
	it.cur = RR{
		Name:       name,
		Type:       typ,
		Class:      class,
		TTL:        ttl,
		RDLength:   rdlength,
		RData:      it.buf[rdataOffset : rdataOffset+int(rdlength)],
		ttlOffset:  ttlOffset,
		buf:        it.buf,
		encodedLen: encLen,
	}
	it.offset += encLen
	it.remaining--
	return true
}

// RR returns the record decoded by the most recent Next call.
func (it *RRIterator) RR() RR { return it.cur }

// Err returns the first decode error encountered, if any.
func (it *RRIterator) Err() error { return it.err }

// SetTTL rewrites this record's TTL field in place within its owning
// message buffer.
func (r RR) SetTTL(ttl uint32) {
	binary.BigEndian.PutUint32(r.buf[r.ttlOffset:r.ttlOffset+4], ttl)
}
