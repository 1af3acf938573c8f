package scraper

import "strings"

// detailRoot is the path under the catalog base where detail pages live.
const detailRoot = "catalogue/"

// ResolveAddresses turns per-category relative item links into absolute
// detail-page addresses and drops duplicates. The first occurrence of an
// address, in category order and then page order, fixes its position.
func ResolveAddresses(baseURL string, links [][]string) []string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	root := baseURL + detailRoot

	total := 0
	for _, l := range links {
		total += len(l)
	}
	seen := make(map[string]struct{}, total)
	out := make([]string, 0, total)

	for _, category := range links {
		for _, rel := range category {
			abs := resolveItem(root, rel)
			if abs == "" {
				continue
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			out = append(out, abs)
		}
	}
	return out
}

func resolveItem(root, rel string) string {
	rel = strings.TrimSpace(rel)
	if strings.HasPrefix(rel, "http://") || strings.HasPrefix(rel, "https://") {
		return rel
	}
	for {
		switch {
		case strings.HasPrefix(rel, "../"):
			rel = rel[len("../"):]
		case strings.HasPrefix(rel, "./"):
			rel = rel[len("./"):]
		case strings.HasPrefix(rel, "/"):
			rel = rel[1:]
		default:
			rel = strings.TrimPrefix(rel, detailRoot)
			if rel == "" {
				return ""
			}
			return root + rel
		}
	}
}
