package syndication

// MergeTouched overlays the local changes for touched targets onto remote.
// base is the state local was derived from. For a touched target whose
// remote status still equals base, nobody else moved it and the local
// status applies as-is; otherwise the two are reconciled with PickForward.
// Untouched targets keep their remote values.
func MergeTouched(remote, base, local State, touched map[string]struct{}) State {
	merged := remote.Clone()
	for target := range touched {
		if merged.Syndication[target] == "" && local.Syndication[target] != "" {
			merged.Syndication[target] = local.Syndication[target]
		}

		status := local.Status[target]
		if remote.Status[target] != base.Status[target] {
			status = PickForward(remote.Status[target], local.Status[target])
		}
		if merged.Syndication[target] != "" {
			status = StatusConfirmed
		}
		if status == "" {
			delete(merged.Status, target)
		} else {
			merged.Status[target] = status
		}

		if status == StatusConfirmed {
			merged.MarkConfirmed(target)
			continue
		}
		if v := local.RequestedAt[target]; v != "" {
			merged.RequestedAt[target] = v
		}
		if v := local.CheckedAt[target]; v != "" {
			merged.CheckedAt[target] = v
		} else {
			delete(merged.CheckedAt, target)
		}
		if v := local.LastError[target]; v != "" {
			merged.LastError[target] = v
		}
	}
	return merged
}
