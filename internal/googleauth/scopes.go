package googleauth

import (
	mapset "github.com/deckarep/golang-set/v2"
	gdrive "google.golang.org/api/drive/v3"
	goauth2 "google.golang.org/api/oauth2/v2"
)

// ServerScopes are requested by the web login: per-file Drive access plus the basic profile.
func ServerScopes() []string {
	return []string{gdrive.DriveFileScope, goauth2.UserinfoProfileScope}
}

// QuickstartScopes are requested by the console tool.
func QuickstartScopes() []string {
	return []string{gdrive.DriveReadonlyScope}
}

// HasScopes reports whether granted covers every scope in required.
func HasScopes(granted, required []string) bool {
	return mapset.NewSet(required...).IsSubset(mapset.NewSet(granted...))
}
