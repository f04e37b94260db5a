package emailutil

import "strings"

// Normalize lowercases and trims an address for comparison
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain returns the part after the last @, or "" when there is none
func ExtractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// DomainAllowed reports whether email belongs to one of domains.
// An empty list allows everyone.
func DomainAllowed(email string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	domain := ExtractDomain(Normalize(email))
	if domain == "" {
		return false
	}
	for _, d := range domains {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return true
		}
	}
	return false
}
