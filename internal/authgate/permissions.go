package authgate

import "strings"

// HasPermission implements the permission model of spec §4.2: "admin"
// grants all, an exact match satisfies itself, and any prefix wildcard
// ("a:*", "a:b:*") satisfies a more specific requirement.
func HasPermission(granted []string, required string) bool {
	for _, g := range granted {
		if g == "admin" || g == required {
			return true
		}
		if strings.HasSuffix(g, ":*") {
			prefix := strings.TrimSuffix(g, "*")
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}
	return false
}
