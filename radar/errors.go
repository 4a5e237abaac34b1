package radar

import (
	"errors"

	"github.com/solweave/degenradar/radar/internal/session"
)

// ErrAuthFailed is returned when the browser source cannot
// authenticate. The session's cookie jar has been discarded.
var ErrAuthFailed = session.ErrAuthFailed

// ErrNoSession is returned when the browser source is enabled but no
// credentials are configured.
var ErrNoSession = errors.New("radar: browser source has no credentials")

// ErrUnknownSource is returned by RunSourceOnce for names not in the
// configuration.
var ErrUnknownSource = errors.New("radar: unknown source")
