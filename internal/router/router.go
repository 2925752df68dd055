// Package router picks the site adapter for a hostname.
package router

import (
	"regexp"
	"strings"

	"github.com/MeKo-Tech/lahidna/internal/sites"
)

// Matcher decides whether a hostname belongs to a route.
type Matcher func(hostname string) bool

// Entry is one row of the dispatch table.
type Entry struct {
	Adapter string
	Match   Matcher
	New     sites.Constructor
}

// Exact matches hostname verbatim.
func Exact(host string) Matcher {
	return func(h string) bool { return h == host }
}

// Suffix matches hostnames ending in suffix, such as ".facebook.com".
func Suffix(suffix string) Matcher {
	return func(h string) bool { return strings.HasSuffix(h, suffix) }
}

// Domain matches domain itself and any of its subdomains.
func Domain(domain string) Matcher {
	return func(h string) bool { return h == domain || strings.HasSuffix(h, "."+domain) }
}

// Pattern matches hostnames against a regular expression.
func Pattern(re *regexp.Regexp) Matcher {
	return re.MatchString
}

var googleSearchHost = regexp.MustCompile(`^(www\.)?google\.(\w\w|co\.\w\w|com|com\.\w\w)$`)

// Table is the dispatch table, evaluated top to bottom. Rows claim
// disjoint hosts: the Google pattern does not cover myaccount.google.com.
var Table = []Entry{
	{Adapter: "google-myaccount", Match: Exact("myaccount.google.com"), New: sites.Wrap(sites.NewGoogleMyAccount)},
	{Adapter: "google-search", Match: Pattern(googleSearchHost), New: sites.Wrap(sites.NewGoogleSearch)},
	{Adapter: "facebook", Match: Suffix(".facebook.com"), New: sites.Wrap(sites.NewFacebook)},
	{Adapter: "linkedin", Match: Suffix(".linkedin.com"), New: sites.Wrap(sites.NewLinkedIn)},
	{Adapter: "youtube", Match: Suffix(".youtube.com"), New: sites.Wrap(sites.NewYouTube)},
	{Adapter: "wikipedia", Match: Suffix(".wikipedia.org"), New: sites.Wrap(sites.NewWikipedia)},
	{Adapter: "duckduckgo", Match: Domain("duckduckgo.com"), New: sites.Wrap(sites.NewDuckDuckGo)},
	{Adapter: "hmara", Match: Domain("hmara.info"), New: sites.Wrap(sites.NewHmara)},
}

// Adapters lists the adapter names of Table in order.
func Adapters() []string {
	names := make([]string, 0, len(Table))
	for _, r := range Table {
		names = append(names, r.Adapter)
	}
	return names
}

// Lookup returns the first route matching hostname.
func Lookup(hostname string) (Entry, bool) {
	h := strings.ToLower(strings.TrimSuffix(hostname, "."))
	for _, r := range Table {
		if r.Match(h) {
			return r, true
		}
	}
	return Entry{}, false
}

// Route returns the adapter constructor for hostname. No match means the
// page is left alone.
func Route(hostname string) (sites.Constructor, bool) {
	r, ok := Lookup(hostname)
	if !ok {
		return nil, false
	}
	return r.New, true
}
