// Package aoi loads the area of interest: the region codes a run may admit.
package aoi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"sceneselect/internal/blob"
	"sceneselect/internal/scene"
)

// Set is an immutable set of normalized region codes.
type Set struct {
	codes map[string]struct{}
}

// New normalizes codes into a Set.
func New(codes ...string) (*Set, error) {
	s := &Set{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		if err := s.add(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) add(code string) error {
	n, err := scene.NormalizeRegionCode(code)
	if err != nil {
		return fmt.Errorf("aoi region %q: %w", code, err)
	}
	s.codes[n] = struct{}{}
	return nil
}

// Contains reports whether the normalized code is in the set. Non-normalized
// input is normalized first.
func (s *Set) Contains(code string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.codes[code]; ok {
		return true
	}
	n, err := scene.NormalizeRegionCode(code)
	if err != nil {
		return false
	}
	_, ok := s.codes[n]
	return ok
}

// Len returns the number of regions.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.codes)
}

// Codes returns the regions in sorted order.
func (s *Set) Codes() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Parse reads region codes separated by newlines, commas or spaces. Blank
// lines and '#' comments are ignored.
func Parse(data []byte) (*Set, error) {
	s := &Set{codes: make(map[string]struct{})}
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		for _, field := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			if err := s.add(field); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read aoi: %w", err)
	}
	return s, nil
}

// Load reads the AOI document stored under key.
func Load(ctx context.Context, store blob.Store, key string) (*Set, error) {
	data, err := blob.ReadAll(ctx, store, key)
	if err != nil {
		return nil, fmt.Errorf("load aoi %s: %w", key, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("aoi %s: %w", key, err)
	}
	return s, nil
}
