package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"sceneselect/internal/scene"
	"sceneselect/pkg/domain"
)

// Match reports whether ds satisfies every clause.
func (e Expression) Match(ds domain.Dataset) bool {
	for _, c := range e.Clauses {
		if !c.Match(ds) {
			return false
		}
	}
	return true
}

// Match reports whether ds satisfies the clause. A dataset without the
// named component never matches.
func (c Clause) Match(ds domain.Dataset) bool {
	if c.kind == kindVersion {
		installed, ok := ds.SoftwareVersion(c.Key)
		if !ok {
			return false
		}
		v, ok := canonicalVersion(installed)
		if !ok {
			return false
		}
		return holds(c.Op, semver.Compare(v, c.version))
	}
	got, ok := stringField(ds, c.Key)
	if !ok {
		return false
	}
	want := c.Value
	if c.Key == "region_code" {
		if n, err := scene.NormalizeRegionCode(want); err == nil {
			want = n
		}
	}
	return holds(c.Op, strings.Compare(got, want))
}

func stringField(ds domain.Dataset, key string) (string, bool) {
	var v string
	switch key {
	case "maturity":
		v = string(ds.Maturity)
	case "platform":
		v = ds.Platform
	case "region_code":
		v = ds.RegionCode
		if n, err := scene.NormalizeRegionCode(v); err == nil {
			v = n
		}
	}
	return v, v != ""
}

func holds(op Op, cmp int) bool {
	switch op {
	case OpEquals:
		return cmp == 0
	case OpLess:
		return cmp < 0
	case OpLessEq:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEq:
		return cmp >= 0
	}
	return false
}

// UnparsedVersions lists the key=value pairs of version clauses whose
// installed value ds reports but canonicalVersion cannot read. Such clauses
// never match.
func (e Expression) UnparsedVersions(ds domain.Dataset) []string {
	var out []string
	for _, c := range e.Clauses {
		if c.kind != kindVersion {
			continue
		}
		installed, ok := ds.SoftwareVersion(c.Key)
		if !ok {
			continue
		}
		if _, ok := canonicalVersion(installed); !ok {
			out = append(out, c.Key+"="+installed)
		}
	}
	return out
}

// pep440 accepts the public version forms Python packages report, plus a
// local "+..." label which is ignored.
var pep440 = regexp.MustCompile(`(?i)^v?(\d+(?:\.\d+)*)` +
	`(?:[-_.]?(a|alpha|b|beta|c|rc|pre|preview)[-_.]?(\d+)?)?` +
	`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d+)?)?` +
	`(?:[-_.]?(dev)[-_.]?(\d+)?)?` +
	`(?:\+[a-z0-9]+(?:[-_.][a-z0-9]+)*)?$`)

// Pre-release stage ranks. Development releases sort below alpha.
var preRank = map[string]int{
	"a": 2, "alpha": 2,
	"b": 3, "beta": 3,
	"c": 4, "rc": 4, "pre": 4, "preview": 4,
}

// canonicalVersion maps PEP 440 and semver-like versions ("1.2", "v1.2.3",
// "1.2.3rc1", "1.2.3.dev5+g1a2b3c", "1.2.3.post1") onto vMAJOR.MINOR.PATCH
// strings that semver.Compare orders the way PEP 440 does. The prerelease
// is numeric only:
//
//	X.devM   -> X-1.M
//	XaN      -> X-2.N.1    (XaN.devM -> X-2.N.0.M)
//	XbN      -> X-3.N.1
//	XrcN     -> X-4.N.1
//	X.postK  -> X'-0.K.1   (X' is X with patch+1; .devM -> X'-0.K.0.M)
//
// Release segments past the third must be zero. A post-release of a
// pre-release is rejected.
func canonicalVersion(s string) (string, bool) {
	m := pep440.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	release := strings.Split(m[1], ".")
	nums := make([]int, 3)
	for i, p := range release {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", false
		}
		if i < 3 {
			nums[i] = n
		} else if n != 0 {
			return "", false
		}
	}
	preTag, preNum := strings.ToLower(m[2]), m[3]
	postNum, hasPost := m[4], m[4] != ""
	if m[5] != "" {
		postNum, hasPost = m[6], true
	}
	hasDev, devNum := m[7] != "", m[8]

	var pre []string
	switch {
	case hasPost && preTag != "":
		return "", false
	case hasPost:
		nums[2]++
		pre = []string{"0", num(postNum)}
	case preTag != "":
		pre = []string{strconv.Itoa(preRank[preTag]), num(preNum)}
	}
	switch {
	case hasDev && len(pre) > 0:
		pre = append(pre, "0", num(devNum))
	case hasDev:
		pre = []string{"1", num(devNum)}
	case len(pre) > 0:
		pre = append(pre, "1")
	}
	v := fmt.Sprintf("v%d.%d.%d", nums[0], nums[1], nums[2])
	if len(pre) > 0 {
		v += "-" + strings.Join(pre, ".")
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}

// num renders an optional numeric segment without leading zeros.
func num(s string) string {
	if s == "" {
		return "0"
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return "0"
	}
	return strconv.Itoa(n)
}
