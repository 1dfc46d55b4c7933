package netutil

import "strings"

// Fingerprint is the coarse client classification recorded on login
// attempts. It is audit metadata, not an authentication signal.
type Fingerprint struct {
	Platform string
	Browser  string
	Device   string
}

// ParseFingerprint derives a platform/browser/device triple from a
// User-Agent header. Unknown agents yield "unknown" fields rather than
// empty strings so audit rows stay queryable.
func ParseFingerprint(ua string) Fingerprint {
	ua = TruncateUserAgent(ua)
	lower := strings.ToLower(ua)

	fp := Fingerprint{Platform: "unknown", Browser: "unknown", Device: "desktop"}

	switch {
	case strings.Contains(lower, "android"):
		fp.Platform = "android"
		fp.Device = "mobile"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipod"):
		fp.Platform = "ios"
		fp.Device = "mobile"
	case strings.Contains(lower, "ipad"):
		fp.Platform = "ios"
		fp.Device = "tablet"
	case strings.Contains(lower, "windows"):
		fp.Platform = "windows"
	case strings.Contains(lower, "mac os x"), strings.Contains(lower, "macintosh"):
		fp.Platform = "macos"
	case strings.Contains(lower, "linux"):
		fp.Platform = "linux"
	}

	// Order matters: Chrome UAs contain "safari", Edge UAs contain both.
	switch {
	case strings.Contains(lower, "edg/"):
		fp.Browser = "edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		fp.Browser = "opera"
	case strings.Contains(lower, "chrome/"), strings.Contains(lower, "crios/"):
		fp.Browser = "chrome"
	case strings.Contains(lower, "firefox/"), strings.Contains(lower, "fxios/"):
		fp.Browser = "firefox"
	case strings.Contains(lower, "safari/"):
		fp.Browser = "safari"
	case lower == "":
		fp.Browser = "unknown"
	}

	if strings.Contains(lower, "bot") || strings.Contains(lower, "curl/") || strings.Contains(lower, "wget/") {
		fp.Device = "agent"
	}
	return fp
}
