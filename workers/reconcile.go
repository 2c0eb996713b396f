// workers/reconcile.go
package workers

import "quest-arcade-system/models"

// ReconcileBalance merges the authoritative on-chain balance with local
// optimistic adjustments. Inputs:
//
//	lastSynced — on-chain balance observed at the previous successful sync
//	local      — current locally held balance (post optimistic debits)
//	remote     — on-chain balance observed now
//
// A local debit with no on-chain counterpart (e.g. a reward-shop purchase
// not yet confirmed) must survive the sync: the chain is only trusted for
// the delta it actually gained. On the very first sync (both tracked
// values zero-initialized) the chain is trusted outright.
func ReconcileBalance(lastSynced, local, remote models.Amount) models.Amount {
	if lastSynced.IsZero() && local.IsZero() {
		return remote
	}
	if remote.Cmp(lastSynced) > 0 {
		return local.Add(remote.Sub(lastSynced))
	}
	return local
}
