// Package geoip implements a country-code IP matcher loaded from a plain
// text CIDR table (one "<cidr>,<country-code>" pair per line), rather than
// a MaxMind binary database — see the REDESIGN FLAGS entry in SPEC_FULL.md
// for why.
package geoip

import (
	"bufio"
	"io"
	"net/netip"
	"os"
	"strings"

	"go4.org/netipx"

	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// Matcher answers "is this IP in country cc" queries against a set of
// country -> CIDR-ranges tables, built with go4.org/netipx.IPSetBuilder (a
// teacher dependency, previously unwired) for compact, sorted-range
// membership tests.
type Matcher struct {
	byCountry map[string]*netipx.IPSet
}

// Load reads a text CIDR table from path and builds a Matcher.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.InvalidConfig("geoip: cannot open database ", path).Base(err)
	}
	defer f.Close()
	return parse(f)
}

// parse reads "<cidr>,<country-code>" lines, blank lines and "#" comments
// ignored, case-insensitive on the country code.
func parse(r io.Reader) (*Matcher, error) {
	builders := make(map[string]*netipx.IPSetBuilder)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			return nil, xerrors.MalformedMessage("geoip: malformed line ", line)
		}

		prefix, err := netip.ParsePrefix(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, xerrors.MalformedMessage("geoip: invalid CIDR ", fields[0]).Base(err)
		}
		cc := strings.ToUpper(strings.TrimSpace(fields[1]))

		b, ok := builders[cc]
		if !ok {
			b = &netipx.IPSetBuilder{}
			builders[cc] = b
		}
		b.AddPrefix(prefix)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	byCountry := make(map[string]*netipx.IPSet, len(builders))
	for cc, b := range builders {
		set, err := b.IPSet()
		if err != nil {
			return nil, xerrors.Internal("geoip: building IP set for ", cc).Base(err)
		}
		byCountry[cc] = set
	}
	return &Matcher{byCountry: byCountry}, nil
}

// Is reports whether ip falls within country cc's ranges. The comparison is
// case-insensitive on cc.
func (m *Matcher) Is(ip netip.Addr, cc string) bool {
	set, ok := m.byCountry[strings.ToUpper(cc)]
	if !ok {
		return false
	}
	return set.Contains(ip)
}
