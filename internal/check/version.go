package check

import (
	"strconv"
	"strings"
)

// torVersion is MAJOR.MINOR.MICRO[.PATCH][-TAG]. Trailing text after a
// space, such as a git revision, is ignored.
type torVersion struct {
	parts [4]int
	tag   string
}

func parseTorVersion(s string) (torVersion, bool) {
	var v torVersion
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "Tor "))
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s, v.tag = s[:i], s[i+1:]
	}
	fields := strings.Split(s, ".")
	if len(fields) < 3 || len(fields) > 4 {
		return torVersion{}, false
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return torVersion{}, false
		}
		v.parts[i] = n
	}
	return v, true
}

// compare orders versions numerically. A release sorts after any tagged
// build of the same number; tags compare as strings.
func (v torVersion) compare(o torVersion) int {
	for i := range v.parts {
		if v.parts[i] != o.parts[i] {
			if v.parts[i] < o.parts[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case v.tag == o.tag:
		return 0
	case v.tag == "":
		return 1
	case o.tag == "":
		return -1
	}
	return strings.Compare(v.tag, o.tag)
}

// lowestVersion returns the smallest parseable version in vs.
func lowestVersion(vs []string) (torVersion, bool) {
	var low torVersion
	found := false
	for _, s := range vs {
		v, ok := parseTorVersion(s)
		if !ok {
			continue
		}
		if !found || v.compare(low) < 0 {
			low, found = v, true
		}
	}
	return low, found
}
