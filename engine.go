package isotp

import "context"

// checkCancel reports goctx's cancellation as a Go error without
// blocking. A nil goctx never cancels, matching context.Background's
// behaviour for callers that don't need cancellation.
func checkCancel(goctx context.Context) error {
	if goctx == nil {
		return nil
	}
	select {
	case <-goctx.Done():
		return goctx.Err()
	default:
		return nil
	}
}

// timeoutLike reports whether err represents a transport-level
// receive timeout, the convention net.Error and this module's own
// timeoutError both follow.
func timeoutLike(err error) bool {
	te, ok := err.(interface{ Timeout() bool })
	return ok && te.Timeout()
}
