package packagemanager

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Line offsets of the "Packages (N) ..." header in transaction output.
const (
	installHeaderLine = 3
	removeHeaderLine  = 2
)

var (
	ErrMalformedUpgradeLine = errors.New("malformed upgrade preview line")

	packageFilePattern = regexp.MustCompile(`^.*\.pkg\.tar(\.(gz|bz2|xz|lrz|lzo|Z|zst))?$`)
	versionSuffix      = regexp.MustCompile(`-[0-9].*$`)
	upgradeLinePattern = regexp.MustCompile(`^(\S+)\s+(\S+-\S+)\s+->\s+(\S+-\S+)`)
)

// IsPackageFile reports whether ref names a package archive rather than a
// repository package.
func IsPackageFile(ref string) bool {
	return packageFilePattern.MatchString(ref)
}

// CanonicalName strips any directory prefix and the version/release suffix:
// "/tmp/foo-1.2.3-1.pkg.tar.xz" and "core/foo-1.2.3-1" both become "foo".
func CanonicalName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return versionSuffix.ReplaceAllString(ref, "")
}

// ParseVersion returns the value of the first "Version : x" field of -Qi/-Si output.
func ParseVersion(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.TrimSpace(key) == "Version" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// ParseGroupMembers returns the non-blank lines of -Sgq output.
func ParseGroupMembers(output string) []string {
	var members []string
	for _, line := range strings.Split(output, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			members = append(members, name)
		}
	}
	return members
}

// ParseUpgradePreview parses -Qu output, one "name old -> new" per line.
// Any non-blank line that does not fit the pattern is an error.
func ParseUpgradePreview(output string) ([]Upgrade, error) {
	var upgrades []Upgrade
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := upgradeLinePattern.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedUpgradeLine, line)
		}
		upgrades = append(upgrades, Upgrade{Name: m[1], OldVersion: m[2], NewVersion: m[3]})
	}
	return upgrades, nil
}

// ParseTransactionPackages extracts the canonical package names from the
// "Packages (N) foo-1.0-1 bar-2.0-1" line of -S/-U/-R output. The line is
// expected at headerLine; if something else is there the output is scanned
// for the header instead.
func ParseTransactionPackages(output string, headerLine int) []string {
	lines := strings.Split(output, "\n")

	header := ""
	if headerLine < len(lines) && isPackagesHeader(lines[headerLine]) {
		header = lines[headerLine]
	} else {
		for _, line := range lines {
			if isPackagesHeader(line) {
				header = line
				break
			}
		}
	}

	fields := strings.Fields(header)
	if len(fields) <= 2 {
		return nil
	}

	names := make([]string, 0, len(fields)-2)
	for _, token := range fields[2:] {
		names = append(names, CanonicalName(token))
	}
	return names
}

func isPackagesHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "Packages (")
}
