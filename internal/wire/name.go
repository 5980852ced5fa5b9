package wire

import (
	"strings"

	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// maxPointerJumps bounds the number of compression-pointer hops a single
// name decode may take, guarding against pathological (if non-cyclic) chains
// in addition to the strict-decrease loop guard below.
const maxPointerJumps = 128

// Name is a view over a domain name's labels inside a Message buffer. It
// does not own the bytes; it borrows slices of buf.
type Name struct {
	// Labels are the label byte slices in order, not including the root
	// label. An empty slice denotes the root domain.
	Labels [][]byte
	// EncodedLen is the number of bytes this occurrence of the name
	// consumes starting at its offset: up to and including the terminating
	// zero byte, or up to and including the 2-byte pointer that replaced
	// the remainder.
	EncodedLen int
}

// decodeName walks a name starting at offset in buf, following compression
// pointers. Pointers must strictly target an earlier offset than the
// pointer byte itself (loop guard); more than maxPointerJumps hops fails.
func decodeName(buf []byte, offset int) (Name, error) {
	if offset < 0 || offset >= len(buf) {
		return Name{}, xerrors.MalformedMessage("name offset out of range")
	}

	var labels [][]byte
	cur := offset
	encodedLen := -1
	jumps := 0

	for {
		if cur < 0 || cur >= len(buf) {
			return Name{}, xerrors.MalformedMessage("name decode ran past end of buffer")
		}
		b := buf[cur]

		switch {
		case b == 0:
			if encodedLen == -1 {
				encodedLen = cur - offset + 1
			}
			return Name{Labels: labels, EncodedLen: encodedLen}, nil

		case b&0xC0 == 0xC0:
			if cur+1 >= len(buf) {
				return Name{}, xerrors.MalformedMessage("truncated compression pointer")
			}
			ptr := int(b&0x3F)<<8 | int(buf[cur+1])
			if encodedLen == -1 {
				encodedLen = cur - offset + 2
			}
			jumps++
			if jumps > maxPointerJumps {
				return Name{}, xerrors.MalformedMessage("too many compression pointer jumps")
			}
			if ptr >= cur {
				return Name{}, xerrors.MalformedMessage("compression pointer does not strictly decrease offset")
			}
			cur = ptr

		case b&0xC0 != 0:
			return Name{}, xerrors.MalformedMessage("reserved label length bits set")

		default:
			labelLen := int(b)
			if cur+1+labelLen > len(buf) {
				return Name{}, xerrors.MalformedMessage("label runs past end of buffer")
			}
			labels = append(labels, buf[cur+1:cur+1+labelLen])
			cur += 1 + labelLen
		}
	}
}

// String renders the name as a dotted ASCII string without a trailing dot,
// e.g. "www.example.com". The root name renders as "".
func (n Name) String() string {
	if len(n.Labels) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, l := range n.Labels {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.Write(l)
	}
	return sb.String()
}

var labelValidRunes = func() [256]bool {
	var tbl [256]bool
	for c := 'a'; c <= 'z'; c++ {
		tbl[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		tbl[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		tbl[c] = true
	}
	tbl['-'] = true
	tbl['_'] = true
	return tbl
}()

// ValidateQuestionName checks a dotted name (optional trailing dot) against
// the question-name grammar from spec section 4.1: ASCII labels matching
// [A-Za-z0-9_-]{1,63}, dot-separated.
func ValidateQuestionName(domain string) error {
	d := strings.TrimSuffix(domain, ".")
	if d == "" {
		return nil // root
	}
	for _, label := range strings.Split(d, ".") {
		if len(label) == 0 || len(label) > 63 {
			return xerrors.InvalidDnsEndpoint("invalid label length in domain: ", domain)
		}
		for i := 0; i < len(label); i++ {
			if !labelValidRunes[label[i]] {
				return xerrors.InvalidDnsEndpoint("invalid character in domain: ", domain)
			}
		}
	}
	return nil
}

// EncodeName renders a dotted name (optional trailing dot) as uncompressed
// wire-format label sequence terminated by a zero byte.
func EncodeName(domain string) ([]byte, error) {
	if err := ValidateQuestionName(domain); err != nil {
		return nil, err
	}
	d := strings.TrimSuffix(domain, ".")
	if d == "" {
		return []byte{0}, nil
	}
	labels := strings.Split(d, ".")
	out := make([]byte, 0, len(d)+2)
	for _, label := range labels {
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	out = append(out, 0)
	return out, nil
}
