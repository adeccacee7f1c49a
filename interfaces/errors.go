package interfaces

import "errors"

// ErrConversationGone is returned by a RemoteStore when the target
// conversation or message no longer exists remotely. Remote absence is
// authoritative: callers drop the local entry silently instead of
// retrying or surfacing an error.
var ErrConversationGone = errors.New("conversation no longer exists remotely")
