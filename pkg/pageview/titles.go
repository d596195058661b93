package pageview

import (
	"regexp"
	"strings"
)

// The analytics tag reports the HTML <title>, which MediaWiki renders as
// "<page> - <site name>".
var siteSuffix = regexp.MustCompile(` - [^-]+$`)

// PageTitleForMW turns a reported page title into a wiki title key by
// stripping the site-name suffix and replacing spaces with underscores.
// Titles that themselves contain " - " followed by no further dash are
// cut at the wrong place; there is no way to tell them apart.
func PageTitleForMW(gaTitle string) string {
	title := siteSuffix.ReplaceAllString(gaTitle, "")
	return strings.ReplaceAll(title, " ", "_")
}

// titleFilterRegexp builds the expression that matches the reported page
// title of a wiki title key, whatever the site name is.
func titleFilterRegexp(title string) string {
	return "^" + regexp.QuoteMeta(strings.ReplaceAll(title, "_", " ")) + " - [^-]+$"
}
