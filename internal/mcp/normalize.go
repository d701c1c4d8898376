package mcp

import (
	"net/url"
	"strings"
)

const (
	// smitheryAliasHost serves short-form server pages that alias the real endpoint.
	smitheryAliasHost = "smithery.ai"
	// smitheryServerHost is the canonical endpoint host behind the alias.
	smitheryServerHost = "server.smithery.ai"
)

// Normalize canonicalizes a server URL so equivalent spellings map to one
// registry key. It trims whitespace, strips a single pair of surrounding
// quotes (copy-paste artifacts), strips one trailing slash, and unwraps the
// Smithery alias form https://smithery.ai/server/<qualified> to the canonical
// https://server.smithery.ai/<qualified>. It never fails: input that doesn't
// parse as a URL passes through the string-level steps unchanged.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripWrappingQuotes(s)
	s = strings.TrimSuffix(s, "/")

	u, err := url.Parse(s)
	if err != nil || u.Host != smitheryAliasHost {
		return s
	}

	qualified := strings.TrimPrefix(u.Path, "/server/")
	if qualified == u.Path || qualified == "" {
		return s
	}
	return strings.TrimSuffix("https://"+smitheryServerHost+"/"+qualified, "/")
}

// IsHTTPURL reports whether s parses as an absolute http or https URL.
// It never panics; anything unparseable is simply not an HTTP URL.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func stripWrappingQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first := s[0]
	if first != '`' && first != '"' && first != '\'' {
		return s
	}
	if s[len(s)-1] != first {
		return s
	}
	return s[1 : len(s)-1]
}
