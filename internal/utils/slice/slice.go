package slice

import "strings"

// Check if a string exists in a string slice
func Contains(slice []string, str string) bool {
	return Index(slice, str) >= 0
}

// Index returns the position of str in slice or -1.
func Index(slice []string, str string) int {
	for i, item := range slice {
		if item == str {
			return i
		}
	}
	return -1
}

// split string and clean
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Unique keeps the first occurrence of every element, preserving order.
func Unique(slice []string) []string {
	seen := make(map[string]struct{}, len(slice))
	result := make([]string, 0, len(slice))
	for _, item := range slice {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}
