package filter

import (
	"context"
	"net"
	"strings"

	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

const staticHostsTTL = 300

// Hosts is a static domain -> [IP...] filter. It answers A/IN and AAAA/IN
// questions directly from a configured map, synthesizing one answer RR per
// matching IP with a fixed TTL; it never consults upstream.
//
// Grounded on the teacher's StaticHosts (app/dns/hosts.go), simplified to
// an exact-match map since the glob/regex matcher group there belongs to
// the rule engine in this design, not to an individual filter.
type Hosts struct {
	entries map[string][]net.IP
}

// NewHosts builds a Hosts filter from a name -> IPs map. Names are
// trailing-dot normalized at construction time.
func NewHosts(entries map[string][]net.IP) *Hosts {
	normalized := make(map[string][]net.IP, len(entries))
	for name, ips := range entries {
		normalized[normalizeHostname(name)] = ips
	}
	return &Hosts{entries: normalized}
}

func normalizeHostname(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// Handle synthesizes an answer for each question whose class is IN and
// type is A or AAAA and whose name is present in the map. It sets res only
// if at least one question produced a match, then always continues the
// chain.
func (h *Hosts) Handle(ctx context.Context, fctx *Context, req wire.Message, res *Result, next Next) error {
	if !res.Present {
		it := req.Questions()
		var answered bool
		flags := new(wire.FlagsBuilder).SetQR(true).SetRA(true).SetRD(req.Flags().RD()).Build()
		b := wire.NewBuilder(req.ID()).SetFlags(flags)

		for it.Next() {
			q := it.Question()
			if q.Class != wire.ClassIN || (q.Type != wire.TypeA && q.Type != wire.TypeAAAA) {
				continue
			}
			name := normalizeHostname(q.Name.String())
			ips, ok := h.entries[name]
			if !ok {
				continue
			}
			if !answered {
				b.SetQuestion(q.Name.String(), q.Type, q.Class)
			}
			for _, ip := range ips {
				if matchesFamily(ip, q.Type) {
					b.AddAnswerIP(ip, staticHostsTTL)
					answered = true
				}
			}
		}
		if err := it.Err(); err != nil {
			return err
		}

		if answered {
			msg, err := b.Build()
			if err != nil {
				return err
			}
			res.Set(msg)
		}
	}

	return next(ctx, fctx, req, res)
}

func matchesFamily(ip net.IP, qtype wire.Type) bool {
	if v4 := ip.To4(); v4 != nil {
		return qtype == wire.TypeA
	}
	return qtype == wire.TypeAAAA
}
