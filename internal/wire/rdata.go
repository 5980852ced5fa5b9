package wire

import (
	"encoding/binary"
	"net"

	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// RDataA is the RDATA of an A record: a 4-byte IPv4 address.
type RDataA struct{ IP net.IP }

// RDataAAAA is the RDATA of an AAAA record: a 16-byte IPv6 address.
type RDataAAAA struct{ IP net.IP }

// RDataCNAME is the RDATA of a CNAME record: a (possibly compressed) name.
type RDataCNAME struct{ Target Name }

// RDataPTR is the RDATA of a PTR record: a (possibly compressed) name.
type RDataPTR struct{ Target Name }

// RDataMX is the RDATA of an MX record.
type RDataMX struct {
	Preference uint16
	Exchange   Name
}

// RDataSOA is the RDATA of an SOA record.
type RDataSOA struct {
	MName   Name
	RName   Name
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// RDataTXT is the RDATA of a TXT record: a sequence of length-prefixed
// character strings.
type RDataTXT struct{ Strings [][]byte }

// RDataOpaque is the fallback RDATA for any type outside the closed decode
// set; the bytes are preserved verbatim for forwarding.
type RDataOpaque struct{ Raw []byte }

// DecodeRData decodes r's RDATA per its Type into one of the RData*
// variants above, or RDataOpaque for anything else. CNAME/PTR/MX/SOA name
// fields may be compressed and are resolved against r's owning message
// buffer.
func (r RR) DecodeRData() (interface{}, error) {
	switch r.Type {
	case TypeA:
		if len(r.RData) != 4 {
			return nil, xerrors.MalformedMessage("A record rdata is not 4 bytes")
		}
		ip := make(net.IP, 4)
		copy(ip, r.RData)
		return RDataA{IP: ip}, nil

	case TypeAAAA:
		if len(r.RData) != 16 {
			return nil, xerrors.MalformedMessage("AAAA record rdata is not 16 bytes")
		}
		ip := make(net.IP, 16)
		copy(ip, r.RData)
		return RDataAAAA{IP: ip}, nil

	case TypeCNAME:
		name, err := r.decodeEmbeddedName(0)
		if err != nil {
			return nil, err
		}
		return RDataCNAME{Target: name}, nil

	case TypePTR:
		name, err := r.decodeEmbeddedName(0)
		if err != nil {
			return nil, err
		}
		return RDataPTR{Target: name}, nil

	case TypeMX:
		if len(r.RData) < 3 {
			return nil, xerrors.MalformedMessage("MX record rdata too short")
		}
		pref := binary.BigEndian.Uint16(r.RData[0:2])
		name, err := r.decodeEmbeddedName(2)
		if err != nil {
			return nil, err
		}
		return RDataMX{Preference: pref, Exchange: name}, nil

	case TypeSOA:
		return r.decodeSOA()

	case TypeTXT:
		return r.decodeTXT()

	default:
		raw := make([]byte, len(r.RData))
		copy(raw, r.RData)
		return RDataOpaque{Raw: raw}, nil
	}
}

// rdataOffset returns the absolute buffer offset of this RR's RDATA, used
// to resolve names embedded in RDATA (which may carry compression pointers
// relative to the whole message, not the RDATA slice).
func (r RR) rdataOffset() int {
	return r.ttlOffset + 6
}

// decodeEmbeddedName decodes a name embedded in RDATA starting `skip` bytes
// into the RDATA, against the owning message buffer (so compression
// pointers resolve correctly).
func (r RR) decodeEmbeddedName(skip int) (Name, error) {
	return decodeName(r.buf, r.rdataOffset()+skip)
}

func (r RR) decodeSOA() (RDataSOA, error) {
	mname, err := r.decodeEmbeddedName(0)
	if err != nil {
		return RDataSOA{}, err
	}
	rname, err := decodeName(r.buf, r.rdataOffset()+mname.EncodedLen)
	if err != nil {
		return RDataSOA{}, err
	}
	tail := r.rdataOffset() + mname.EncodedLen + rname.EncodedLen
	if tail+20 > len(r.buf) {
		return RDataSOA{}, xerrors.MalformedMessage("SOA record rdata too short")
	}
	return RDataSOA{
		MName:   mname,
		RName:   rname,
		Serial:  binary.BigEndian.Uint32(r.buf[tail : tail+4]),
		Refresh: binary.BigEndian.Uint32(r.buf[tail+4 : tail+8]),
		Retry:   binary.BigEndian.Uint32(r.buf[tail+8 : tail+12]),
		Expire:  binary.BigEndian.Uint32(r.buf[tail+12 : tail+16]),
		Minimum: binary.BigEndian.Uint32(r.buf[tail+16 : tail+20]),
	}, nil
}

func (r RR) decodeTXT() (RDataTXT, error) {
	var out RDataTXT
	i := 0
	for i < len(r.RData) {
		n := int(r.RData[i])
		i++
		if i+n > len(r.RData) {
			return RDataTXT{}, xerrors.MalformedMessage("TXT character-string runs past rdata")
		}
		s := make([]byte, n)
		copy(s, r.RData[i:i+n])
		out.Strings = append(out.Strings, s)
		i += n
	}
	return out, nil
}
