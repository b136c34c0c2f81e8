// Package strutils provides small string-slice helpers.
package strutils

// StrListContains looks for a string in a list of strings.
func StrListContains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

// RemoveDuplicatesStable removes duplicate and empty elements from a slice of
// strings, preserving order.
func RemoveDuplicatesStable(items []string) []string {
	itemsMap := make(map[string]struct{}, len(items))
	deduplicated := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := itemsMap[item]; ok {
			continue
		}
		itemsMap[item] = struct{}{}
		deduplicated = append(deduplicated, item)
	}
	return deduplicated
}
