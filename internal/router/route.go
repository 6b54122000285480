package router

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Route names a logical screen and the path pattern that renders it.
// Pattern segments starting with ':' bind a parameter; a trailing '*'
// binds the remainder of the path to the "*" parameter.
type Route struct {
	Name    string
	Pattern string
}

// Location is a resolved route descriptor.
type Location struct {
	Name   string
	Path   string
	Params map[string]string
	Query  url.Values
}

// FullPath renders the path plus its encoded query.
func (l Location) FullPath() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

// LocationPatch describes a navigation target by path or by name.
// Path may carry a query string.
type LocationPatch struct {
	Name   string
	Path   string
	Params map[string]string
	Query  url.Values
}

func (p LocationPatch) IsZero() bool {
	return strings.TrimSpace(p.Name) == "" && strings.TrimSpace(p.Path) == ""
}

// Transition is what route hooks observe.
type Transition struct {
	To   Location
	From Location
}

type compiledRoute struct {
	name     string
	pattern  string
	segments []string
}

func compile(r Route) (compiledRoute, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return compiledRoute{}, fmt.Errorf("%w: route missing name", ErrInvalidRoute)
	}
	pattern := strings.TrimSpace(r.Pattern)
	if !strings.HasPrefix(pattern, "/") {
		return compiledRoute{}, fmt.Errorf("%w: %s: pattern must start with /", ErrInvalidRoute, name)
	}
	segments := splitPath(pattern)
	for i, seg := range segments {
		if seg == "*" && i != len(segments)-1 {
			return compiledRoute{}, fmt.Errorf("%w: %s: * must be the last segment", ErrInvalidRoute, name)
		}
		if seg == ":" {
			return compiledRoute{}, fmt.Errorf("%w: %s: empty parameter name", ErrInvalidRoute, name)
		}
	}
	return compiledRoute{name: name, pattern: pattern, segments: segments}, nil
}

func (c compiledRoute) match(p string) (map[string]string, bool) {
	parts := splitPath(p)
	params := make(map[string]string)
	for i, seg := range c.segments {
		if seg == "*" {
			params["*"] = strings.Join(parts[i:], "/")
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		if strings.HasPrefix(seg, ":") {
			params[seg[1:]] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	if len(parts) != len(c.segments) {
		return nil, false
	}
	return params, true
}

func (c compiledRoute) build(params map[string]string) (string, error) {
	out := make([]string, 0, len(c.segments))
	for _, seg := range c.segments {
		switch {
		case seg == "*":
			if rest := params["*"]; rest != "" {
				out = append(out, rest)
			}
		case strings.HasPrefix(seg, ":"):
			v, ok := params[seg[1:]]
			if !ok || v == "" {
				return "", fmt.Errorf("%w: route %s needs %s", ErrMissingParam, c.name, seg[1:])
			}
			out = append(out, url.PathEscape(v))
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/"), nil
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
