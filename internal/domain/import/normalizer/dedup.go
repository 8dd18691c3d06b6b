package normalizer

// Dedupe collapses items by key according to policy, preserving input
// order. Under FirstWins the first item seen for a key is kept unchanged
// and every later item with that key is returned in dropped; nothing is
// merged.
func Dedupe[T any](items []T, key func(T) string, policy DeduplicationPolicy) (kept, dropped []T) {
	kept = make([]T, 0, len(items))
	if policy == KeepAll {
		return append(kept, items...), nil
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		k := key(item)
		if _, dup := seen[k]; dup {
			dropped = append(dropped, item)
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, item)
	}
	return kept, dropped
}

// InvoiceKey is the business key of an invoice.
func InvoiceKey(r InvoiceRecord) string { return r.InvoiceNumber }
