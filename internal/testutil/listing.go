package testutil

import "fmt"

// VerifiedListing returns a package listing in which the target library
// resolves to the working tree, as a verified overlay produces.
func VerifiedListing(pkg, worktree string) string {
	return fmt.Sprintf(
		`[{"name": %q, "version": "0.0.0+editable", "editable_project_location": %q}]`,
		pkg, worktree,
	)
}

// PinnedListing returns a package listing in which the target library is
// a published release, which must fail overlay verification.
func PinnedListing(pkg, version string) string {
	return fmt.Sprintf(`[{"name": %q, "version": %q}]`, pkg, version)
}
