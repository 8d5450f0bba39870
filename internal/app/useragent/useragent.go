// Package useragent classifies a User-Agent header into device class,
// browser and operating system using plain substring rules.
package useragent

import "strings"

const Unknown = "Unknown"

// Device classes.
const (
	Desktop = "Desktop"
	Mobile  = "Mobile"
	Tablet  = "Tablet"
)

// Info is the classification of one User-Agent string.
type Info struct {
	Device  string
	Browser string
	OS      string
}

type rule struct {
	needles []string
	label   string
}

// Order matters: the first match wins. Chrome is checked before Safari
// because Chrome's UA also carries "Safari".
var browserRules = []rule{
	{[]string{"chrome"}, "Chrome"},
	{[]string{"firefox"}, "Firefox"},
	{[]string{"safari"}, "Safari"},
	{[]string{"edge"}, "Edge"},
	{[]string{"msie", "trident"}, "Internet Explorer"},
}

var osRules = []rule{
	{[]string{"windows"}, "Windows"},
	{[]string{"mac"}, "Mac"},
	{[]string{"linux"}, "Linux"},
	{[]string{"android"}, "Android"},
	{[]string{"ios"}, "iOS"},
}

var mobileNeedles = []string{"mobile", "android", "iphone", "ipad", "ipod"}

// Classify returns the device, browser and OS for ua. An empty ua yields
// Unknown for all three. The result depends only on ua.
func Classify(ua string) Info {
	if ua == "" {
		return Info{Device: Unknown, Browser: Unknown, OS: Unknown}
	}
	lower := strings.ToLower(ua)
	return Info{
		Device:  device(lower),
		Browser: match(lower, browserRules),
		OS:      match(lower, osRules),
	}
}

func device(lower string) string {
	if !containsAny(lower, mobileNeedles) {
		return Desktop
	}
	if strings.Contains(lower, "ipad") {
		return Tablet
	}
	return Mobile
}

func match(lower string, rules []rule) string {
	for _, r := range rules {
		if containsAny(lower, r.needles) {
			return r.label
		}
	}
	return Unknown
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
