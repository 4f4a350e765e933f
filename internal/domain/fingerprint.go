package domain

import "fmt"

// Fingerprint collapses an activity to its cross-store identity: kind,
// description, and the occurrence instant truncated to whole seconds.
// Device-minted ids are provisional and remote rows carry store-assigned
// ids, so content is the only comparable identity. The one-second bucket
// absorbs clock and serialization jitter between creation and
// re-serialization; the trade-off is that two genuinely distinct activities
// with identical kind and description inside the same second collapse into
// one.
func Fingerprint(a Activity) string {
	return fmt.Sprintf("%s|%s|%d", a.Kind, a.Description, a.OccurredAt.Unix())
}

// FingerprintSet indexes activities by fingerprint for dedup lookups.
func FingerprintSet(activities []Activity) map[string]struct{} {
	set := make(map[string]struct{}, len(activities))
	for _, a := range activities {
		set[Fingerprint(a)] = struct{}{}
	}
	return set
}
