package media

import "strings"

// Resolver turns a stored media reference into a URL the browser can load.
type Resolver interface {
	Resolve(kind Kind, ref string) (string, error)
}

type ResolverFunc func(kind Kind, ref string) (string, error)

func (f ResolverFunc) Resolve(kind Kind, ref string) (string, error) { return f(kind, ref) }

// PassthroughResolver returns references unchanged.
var PassthroughResolver = ResolverFunc(func(_ Kind, ref string) (string, error) {
	return strings.TrimSpace(ref), nil
})

func IsURL(ref string) bool {
	r := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(r, "http://") ||
		strings.HasPrefix(r, "https://") ||
		strings.HasPrefix(r, "data:") ||
		strings.HasPrefix(r, "//")
}
