// Package pathutil provides resource-id and principal-name validation.
package pathutil

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/mutgate-project/mutgate/pkg/errclass"
)

var (
	principalRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	resourceRegex  = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)
)

// ValidatePrincipal checks a principal id (requester or approver).
func ValidatePrincipal(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("principal must not be empty")
	}
	name = norm.NFC.String(name)
	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("principal must not contain control characters: %q", name)
		}
	}
	if !principalRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("principal must match [a-zA-Z0-9._-]+: %s", name)
	}
	return nil
}

// ValidateResourceID checks a caller-defined resource id. Resource ids
// are opaque keys but may be resolved to relative paths by a filesystem
// store, so path-escape shapes are refused up front.
func ValidateResourceID(id string) error {
	if id == "" {
		return errclass.ErrNameInvalid.WithMessage("resource id must not be empty")
	}

	// NFC normalize
	id = norm.NFC.String(id)

	if id == ".." || strings.Contains(id, "..") {
		return errclass.ErrNameInvalid.WithMessagef("resource id must not contain '..': %s", id)
	}
	if strings.HasPrefix(id, "/") {
		return errclass.ErrNameInvalid.WithMessagef("resource id must be relative: %s", id)
	}
	if strings.Contains(id, "\\") {
		return errclass.ErrNameInvalid.WithMessagef("resource id must use forward slashes: %s", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("resource id must not contain control characters: %q", id)
		}
	}
	if !resourceRegex.MatchString(id) {
		return errclass.ErrNameInvalid.WithMessagef("resource id must match [a-zA-Z0-9._/-]+: %s", id)
	}
	return nil
}

// ValidatePathSafety verifies a resolved target path does not escape root.
func ValidatePathSafety(root, targetPath string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errclass.ErrPathEscape.WithMessagef("cannot resolve root: %v", err)
	}
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return errclass.ErrPathEscape.WithMessagef("cannot resolve target: %v", err)
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errclass.ErrPathEscape.WithMessagef("target escapes root: %s", targetPath)
	}
	return nil
}
