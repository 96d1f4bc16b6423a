package screening

import (
	"net/url"
	"regexp"
	"strings"
)

// Top-level domains recognised as links. Not exhaustive; bare names such as
// "example dot com" are deliberately not matched.
var linkTLDs = []string{
	"com", "net", "org", "info", "biz", "io", "co", "me", "app", "dev", "xyz", "site", "online",
	"top", "club", "shop", "store", "link", "click", "live", "pro", "tech", "ru", "cn", "de",
	"uk", "fr", "jp", "br", "in", "it", "nl", "pl", "es", "us", "eu", "ca", "au", "tk", "ly", "gl",
}

var linkPattern = regexp.MustCompile(`(?i)((://)|((\d{1,3}\.){3}\d{1,3})|([0-9a-z\-%]+\.(` + strings.Join(linkTLDs, "|") + `)))`)

// CleanBody converts <br> tags to newlines.
func CleanBody(body string) string {
	return strings.ReplaceAll(body, "<br>", "\n")
}

// ContainsLink reports whether a body carries a URL, an IPv4 literal or a
// domain name. The body is percent-decoded first so "example%2ecom" is caught.
func ContainsLink(body string) bool {
	if body == "" {
		return false
	}
	decoded, err := url.PathUnescape(body)
	if err != nil {
		decoded = body
	}
	return linkPattern.MatchString(decoded)
}
