// Package rule implements the glob-based rule engine that maps a query's
// question name to a filter chain.
package rule

import (
	"path/filepath"
	"strings"

	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// Rule is a {domain-glob, filter-chain-name} pair. "*" matches
// unconditionally. Glob syntax (`*`, `?`, bracket classes) and matching
// semantics are exactly path/filepath.Match's, applied case-insensitively
// to the dotted question name.
type Rule struct {
	Glob   string
	Target string
}

// Handle holds the ordered list of filter instances a matched rule resolves
// to. Handles are immutable after Build; per request, individual filter
// instances may hold their own internal mutable state.
type Handle struct {
	chain *filter.Chain
}

// Engine evaluates an ordered set of rules against a query and returns the
// matching Handle.
type Engine struct {
	rules  []Rule
	chains map[string]*Handle
}

// NewEngine builds an Engine from rules evaluated in the given order and
// chains resolved by name.
func NewEngine(rules []Rule, chains map[string]*Handle) *Engine {
	return &Engine{rules: rules, chains: chains}
}

// NewHandle wraps a built Chain as an immutable rule target.
func NewHandle(chain *filter.Chain) *Handle {
	return &Handle{chain: chain}
}

// Chain returns the underlying filter chain.
func (h *Handle) Chain() *filter.Chain { return h.chain }

// Resolve returns the Handle for the first rule whose glob matches name.
func (e *Engine) Resolve(name string) (*Handle, error) {
	lowered := strings.ToLower(name)
	for _, r := range e.rules {
		matched, err := matchGlob(r.Glob, lowered)
		if err != nil {
			return nil, err
		}
		if matched {
			h, ok := e.chains[r.Target]
			if !ok {
				return nil, xerrors.InvalidConfig("rule: unknown filter chain ", r.Target)
			}
			return h, nil
		}
	}
	return nil, xerrors.ResolveNothing("rule: no rule matched ", name)
}

func matchGlob(glob, name string) (bool, error) {
	if glob == "*" {
		return true, nil
	}
	matched, err := filepath.Match(strings.ToLower(glob), name)
	if err != nil {
		return false, xerrors.InvalidConfig("rule: invalid glob ", glob).Base(err)
	}
	return matched, nil
}

// QuestionName renders req's first question name as a dotted ASCII string
// with no trailing dot, the matching key the rule engine operates on.
func QuestionName(req wire.Message) (string, error) {
	q, err := req.FirstQuestion()
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(q.Name.String(), "."), nil
}
