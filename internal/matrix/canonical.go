package matrix

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UnitKey computes the canonical identifier for a (project, version) cell.
//
// Both components are NFC normalized before joining so that visually
// identical project names with different Unicode compositions produce the
// same key. The key doubles as the store's unit identifier, so it must be
// stable across runs.
//
// Format: "<project>@<version>", e.g. "sqlmodel@3.12".
func UnitKey(project, version string) string {
	p := norm.NFC.String(strings.TrimSpace(project))
	v := norm.NFC.String(strings.TrimSpace(version))
	return p + "@" + v
}

// SpecHash computes a content hash over a project table. Runs record the
// hash so a recorded result can be tied to the exact table that produced
// it. The hash covers names, repos, refs, and versions in table order.
func SpecHash(specs []ProjectSpec) string {
	h := sha256.New()
	for _, s := range specs {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00", norm.NFC.String(s.Name), s.Repo, s.Ref)
		for _, v := range s.Versions {
			fmt.Fprintf(h, "%s\x00", norm.NFC.String(v))
		}
		fmt.Fprint(h, "\x01")
	}
	return hex.EncodeToString(h.Sum(nil))
}
