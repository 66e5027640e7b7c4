// Package cookies parses raw Cookie headers into a name-keyed map.
// The session endpoint needs attribute-aware parsing (Max-Age in
// particular) that http.Request.Cookies does not surface.
package cookies

import "strings"

// Cookie holds a cookie value plus any attributes that followed it in the header
type Cookie struct {
	Value      string
	Attributes map[string]string
}

// Parse splits a Cookie header into named cookies. Attribute-only segments
// (HttpOnly, Expires=, Max-Age=) are attached to the most recently seen cookie.
func Parse(header string) map[string]*Cookie {
	parsed := make(map[string]*Cookie)
	var last *Cookie

	for _, segment := range strings.Split(header, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		name, value, hasValue := strings.Cut(segment, "=")
		name = strings.TrimSpace(name)

		switch {
		case !hasValue:
			if strings.EqualFold(name, "HttpOnly") && last != nil {
				last.Attributes["HttpOnly"] = "true"
			}
		case strings.EqualFold(name, "Expires") && last != nil:
			last.Attributes["Expires"] = value
		case strings.EqualFold(name, "Max-Age") && last != nil:
			last.Attributes["Max-Age"] = value
		default:
			c := &Cookie{Value: value, Attributes: make(map[string]string)}
			parsed[name] = c
			last = c
		}
	}

	return parsed
}

// Get returns the value of the named cookie, or "" if absent
func Get(header, name string) string {
	if c, ok := Parse(header)[name]; ok {
		return c.Value
	}
	return ""
}
