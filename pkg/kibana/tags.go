package kibana

// MergeTags computes the order-preserving union of an alert's existing tags
// and a requested set of new tags. Existing tags keep their original order;
// genuinely new tags are appended at the end in request order. Duplicates,
// including ones already present on the alert, collapse to a single
// occurrence. Matching is case-sensitive and exact.
//
// The union is idempotent: merging the same request twice yields the same
// result, so re-running a tag operation after a success is safe.
func MergeTags(existing, requested []string) []string {
	merged := make([]string, 0, len(existing)+len(requested))
	seen := make(map[string]struct{}, len(existing)+len(requested))

	for _, t := range existing {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	for _, t := range requested {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	return merged
}
