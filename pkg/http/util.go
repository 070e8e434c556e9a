package http

import (
	"time"

	xutil "CoinSentry/pkg/util"
)

// ParseTimeDefault re-exports the time parsing helper so handlers only
// import this package for request plumbing.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }
