// Package server implements the UDP and TCP DNS listeners: both share a
// Handler that probes the cache, runs the matched filter chain on a miss,
// and inserts the result back into the cache.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/google/uuid"

	"github.com/jjeffcaii/zerodns-sub000/internal/cache"
	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/rule"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// Handler resolves one decoded query to a response, using the rule engine
// to find a filter chain, caching the result unless the chain requests
// otherwise.
type Handler struct {
	engine *rule.Engine
	cache  *cache.LoadingCache
}

// NewHandler builds a Handler over engine and an optional cache (nil
// disables caching entirely, equivalent to cache_size=0).
func NewHandler(engine *rule.Engine, c *cache.LoadingCache) *Handler {
	return &Handler{engine: engine, cache: c}
}

// Handle decodes req (already parsed), resolves it through the rule engine
// and filter chain, and returns the wire bytes to send back. Errors are
// converted to a synthetic response per the taxonomy-to-RCODE mapping; this
// method itself only returns an error for failures that preclude building
// even a synthetic response (caller should log and drop the datagram/frame
// in that case).
func (h *Handler) Handle(ctx context.Context, peer net.Addr, req wire.Message) (wire.Message, error) {
	traceID := uuid.NewString()
	ctx = logging.WithTrace(ctx, traceID)

	q, qerr := req.FirstQuestion()
	resp, err := h.handleDecoded(ctx, peer, req)
	if err == nil {
		return resp, nil
	}

	sev := xerrors.SeverityWarning
	var xe *xerrors.Error
	if errors.As(err, &xe) {
		sev = xe.Severity()
	}
	logging.Severity(sev).Str("trace_id", traceID).Err(err).Msg("handler: request failed, synthesizing error response")

	var echoQuestion *wire.Question
	if qerr == nil {
		echoQuestion = &q
	}
	return wire.BuildErrorResponse(req.ID(), rcodeFor(err), echoQuestion)
}

func (h *Handler) handleDecoded(ctx context.Context, peer net.Addr, req wire.Message) (wire.Message, error) {
	name, err := rule.QuestionName(req)
	if err != nil {
		return wire.Message{}, err
	}

	handle, err := h.engine.Resolve(name)
	if err != nil {
		return wire.Message{}, err
	}

	key := req.NormalizedKey()
	load := func(key string, req wire.Message) (wire.Message, bool, error) {
		fctx := filter.NewContext(peer)
		res := &filter.Result{}
		if err := handle.Chain().Handle(ctx, fctx, req, res); err != nil {
			return wire.Message{}, false, err
		}
		if !res.Present {
			return wire.Message{}, false, xerrors.ResolveNothing("handler: filter chain produced no answer for ", name)
		}
		return res.Message, !fctx.Has(filter.NoCache), nil
	}

	if h.cache == nil {
		msg, _, err := load(key, req)
		return msg, err
	}

	msg, _, err := h.cache.Get(key, req, load)
	if err != nil {
		return wire.Message{}, err
	}
	msg.SetID(req.ID())
	return msg, nil
}

// FormErrResponse builds the synthetic FORMERR reply for a datagram/frame
// that failed to decode even as far as a Message (too short for a header).
// It salvages the transaction id from the first two bytes of raw when
// present, per spec scenario 5 ("id echoed from input's first two bytes"),
// and falls back to id 0 when raw doesn't even have that much.
func FormErrResponse(raw []byte) (wire.Message, error) {
	var id uint16
	if len(raw) >= 2 {
		id = uint16(raw[0])<<8 | uint16(raw[1])
	}
	return wire.BuildErrorResponse(id, wire.RCodeFormatError, nil)
}

// rcodeFor maps an error's taxonomy kind to the RCODE the spec requires:
// FORMERR for malformed input, NOERROR (empty answers) for ResolveNothing,
// SERVFAIL for everything else.
func rcodeFor(err error) wire.RCode {
	switch xerrors.KindOf(err) {
	case xerrors.KindMalformedMessage:
		return wire.RCodeFormatError
	case xerrors.KindResolveNothing:
		return wire.RCodeSuccess
	default:
		return wire.RCodeServerFailure
	}
}
