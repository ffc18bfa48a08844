// Package sanitize gates inbound notification content before display and
// navigation targets before they are acted upon. Every function is pure and
// fails closed.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bark-labs/sitepush/internal/model"
)

var (
	scriptTag     = regexp.MustCompile(`(?is)<\s*script\b[^>]*>.*?<\s*/\s*script\s*>`)
	scriptOpen    = regexp.MustCompile(`(?i)<\s*/?\s*script\b[^>]*>?`)
	dangerScheme  = regexp.MustCompile(`(?i)(javascript|vbscript)\s*:|\bdata:[a-z0-9.+\-]*[/,;]|\bfile:\S`)
	eventHandler  = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	relativePath  = regexp.MustCompile(`^/[A-Za-z0-9\-._~/%?#=&]*$`)
	bareRouteName = regexp.MustCompile(`^[A-Za-z0-9\-]+$`)

	blocklist = []*regexp.Regexp{scriptTag, scriptOpen, dangerScheme, eventHandler}
)

// allowedFields is the only data that survives SanitizeData.
var allowedFields = []string{"type", "id", "url", "title", "message"}

// Notification is inbound content as received from the push provider.
type Notification struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// FromRecord adapts a delivered record to the inbound shape.
func FromRecord(r model.NotificationRecord) Notification {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return Notification{Title: r.Title, Body: r.Body, Data: data}
}

// ValidateForDisplay reports whether n is safe to render.
func ValidateForDisplay(n Notification) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if containsDangerous(n.Title) || containsDangerous(n.Body) {
		return false
	}
	return !dataContainsDangerous(n.Data, 0)
}

// SanitizeForNavigation allows only same-app relative paths or bare route names.
func SanitizeForNavigation(target string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	target = strings.TrimSpace(target)
	if target == "" || containsDangerous(target) {
		return false
	}
	// scheme-relative URLs leave the app
	if strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return false
	}
	if strings.HasPrefix(target, "/") {
		return relativePath.MatchString(target)
	}
	return bareRouteName.MatchString(target)
}

// SanitizeData keeps whitelisted fields and strips dangerous patterns from them.
func SanitizeData(data map[string]any) map[string]string {
	out := make(map[string]string, len(allowedFields))
	for _, field := range allowedFields {
		v, ok := data[field]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case fmt.Stringer:
			s = val.String()
		case bool, int, int32, int64, float32, float64:
			s = fmt.Sprint(val)
		default:
			continue
		}
		out[field] = StripDangerous(s)
	}
	return out
}

// StripDangerous removes script tags, dangerous schemes and inline event handlers.
func StripDangerous(s string) string {
	for {
		next := scriptTag.ReplaceAllString(s, "")
		next = scriptOpen.ReplaceAllString(next, "")
		next = dangerScheme.ReplaceAllString(next, "")
		next = eventHandler.ReplaceAllString(next, "")
		// removals can splice a new match together, repeat until stable
		if next == s {
			return strings.TrimSpace(next)
		}
		s = next
	}
}

// StripMap applies StripDangerous to every value.
func StripMap(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = StripDangerous(v)
	}
	return out
}

func containsDangerous(s string) bool {
	for _, re := range blocklist {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

const maxDepth = 8

func dataContainsDangerous(v any, depth int) bool {
	if depth > maxDepth {
		return true
	}
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return containsDangerous(val)
	case map[string]any:
		for k, item := range val {
			if containsDangerous(k) || dataContainsDangerous(item, depth+1) {
				return true
			}
		}
	case map[string]string:
		for k, item := range val {
			if containsDangerous(k) || containsDangerous(item) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if dataContainsDangerous(item, depth+1) {
				return true
			}
		}
	case []string:
		for _, item := range val {
			if containsDangerous(item) {
				return true
			}
		}
	case bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return false
	default:
		// unknown shapes are rejected
		return true
	}
	return false
}
