// Package htmlx builds HTML fragments that are safe to send to Telegram
// with ParseMode="HTML". Upstream deal titles are arbitrary text, so every
// user-derived string must pass through Esc before embedding.
package htmlx

import (
	"fmt"
	"html"
	"strings"
)

// H is HTML that is already escaped and safe to send as-is.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks a string as already-safe HTML. Use sparingly.
func Raw(s string) H { return H(s) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H      { return wrap("b", Esc(s)) }
func I(s string) H      { return wrap("i", Esc(s)) }
func Strike(s string) H { return wrap("s", Esc(s)) }
func Code(s string) H   { return wrap("code", Esc(s)) }

// Link builds an HTML anchor. html.EscapeString also escapes quotes, so the
// href attribute stays intact for hostile URLs.
func Link(text, url string) H {
	return H(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(text)))
}

// Join concatenates safe parts with sep, skipping empty ones.
func Join(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}
