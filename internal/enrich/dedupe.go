package enrich

// distinctKeys returns each key once, in the order it was first seen.
func distinctKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func setKeys(recs []NormalizedRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.SetKey)
	}
	return distinctKeys(out)
}

func pieceKeys(recs []NormalizedRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.PieceKey)
	}
	return distinctKeys(out)
}
