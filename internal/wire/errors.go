package wire

import "github.com/jjeffcaii/zerodns-sub000/internal/xerrors"

func errTruncated(what string) error {
	return xerrors.MalformedMessage("truncated while reading ", what)
}
