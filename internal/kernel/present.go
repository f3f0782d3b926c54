package kernel

import (
	"github.com/keshon/chatkernel/pkg/cmd"
)

const internalMessage = "Something went wrong while running this command."

// Present turns a dispatch result into chat text. It reports false when
// nothing should be said: success, unknown commands and rejected dispatches
// stay silent.
func Present(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	switch cmd.KindOf(err) {
	case cmd.KindNotFound, cmd.KindRejected:
		return "", false
	case cmd.KindRateLimited:
		return cmd.UserMessage(err, "Slow down!"), true
	case cmd.KindUsage:
		return cmd.UserMessage(err, "Wrong usage."), true
	case cmd.KindForbidden:
		return cmd.UserMessage(err, "You are not allowed to do that here."), true
	case cmd.KindUnavailable:
		return cmd.UserMessage(err, "This command is unavailable right now, try again later."), true
	default:
		return internalMessage, true
	}
}
