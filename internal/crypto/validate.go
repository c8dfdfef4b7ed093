package crypto

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxNodeNameBytes matches the platform limit for a single path component.
const maxNodeNameBytes = 255

// ValidateNodeName normalizes a cleartext node name to NFC and checks it
// against platform naming rules. Returns the normalized name.
func ValidateNodeName(name string) (string, error) {
	name = norm.NFC.String(name)

	if name == "" {
		return "", fmt.Errorf("node name is empty")
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("node name %q is reserved", name)
	}
	if len(name) > maxNodeNameBytes {
		return "", fmt.Errorf("node name exceeds %d bytes", maxNodeNameBytes)
	}
	if strings.ContainsRune(name, '/') {
		return "", fmt.Errorf("node name contains a path separator")
	}
	if name != strings.TrimSpace(name) {
		return "", fmt.Errorf("node name has leading or trailing whitespace")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("node name contains a control character")
		}
	}

	return name, nil
}
