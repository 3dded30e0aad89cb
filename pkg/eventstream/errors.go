package eventstream

import "errors"

// ErrNilPackEvent indicates a nil pack event payload was provided to a publisher.
var ErrNilPackEvent = errors.New("nil pack event")
