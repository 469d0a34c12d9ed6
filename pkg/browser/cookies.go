package browser

import (
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/koala/pkg/cookies"
)

// fromPlaywright converts the context jar. Playwright reports session
// cookies with a negative expiry.
func fromPlaywright(list []playwright.Cookie) []cookies.Cookie {
	out := make([]cookies.Cookie, 0, len(list))
	for _, c := range list {
		ck := cookies.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			t := time.UnixMilli(int64(math.Round(c.Expires * 1000))).UTC()
			ck.Expires = &t
		}
		out = append(out, ck)
	}
	return out
}

// toPlaywright converts list for AddCookies. Cookies without a domain
// cannot be scoped and are skipped; the second result counts them.
func toPlaywright(list []cookies.Cookie) ([]playwright.OptionalCookie, int) {
	out := make([]playwright.OptionalCookie, 0, len(list))
	skipped := 0
	for _, c := range list {
		if c.Domain == "" {
			skipped++
			continue
		}

		path := c.Path
		if path == "" {
			path = "/"
		}
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(path),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.Expires != nil {
			oc.Expires = playwright.Float(float64(c.Expires.UnixMilli()) / 1000)
		}
		out = append(out, oc)
	}
	return out, skipped
}

// sameJar reports whether a and b hold the same cookies in any order.
func sameJar(a, b []cookies.Cookie) bool {
	if len(a) != len(b) {
		return false
	}
	return reflect.DeepEqual(sorted(a), sorted(b))
}

func sorted(list []cookies.Cookie) []cookies.Cookie {
	out := append([]cookies.Cookie(nil), list...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Name < out[j].Name
	})
	return out
}
