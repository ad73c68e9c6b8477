package reconcile

import "repolink/internal/model"

// Classify compares the current snapshots with the baseline. A missing
// snapshot means the side could not be observed and yields Unknown. Without
// a baseline the pair is treated as in sync; the caller adopts it as the
// first baseline.
func Classify(baseline *model.Baseline, local, remote *model.Snapshot) model.Divergence {
	if local == nil || remote == nil {
		return model.Unknown
	}
	if baseline == nil {
		return model.InSync
	}

	localChanged := local.Identity != baseline.Local.Identity
	remoteChanged := remote.Identity != baseline.Remote.Identity

	switch {
	case !localChanged && !remoteChanged:
		return model.InSync
	case localChanged && !remoteChanged:
		return model.LocalAhead
	case !localChanged && remoteChanged:
		return model.RemoteAhead
	default:
		return model.Diverged
	}
}
