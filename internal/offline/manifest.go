package offline

// OfflinePage is the last-resort fallback document, part of the precache
// manifest.
const OfflinePage = "/offline.html"

// DefaultManifest lists the application-shell resources populated into the
// precache at install time.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/app.js",
	"/icon-192.svg",
	"/icon-512.svg",
	OfflinePage,
}

// CacheNames derives the two fixed generation identifiers for a version.
// A version bump means caches carrying the old names are deleted on the next
// activation.
func CacheNames(version string) (precache, runtime string) {
	return "pos-static-" + version, "pos-runtime-" + version
}
