// Package catalog discovers pre-config scripts and puts them in trial order.
package catalog

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/randomizedcoder/go-preconfig-tester/internal/trial"
)

// ErrNoCandidates is returned when the directory holds no matching script.
var ErrNoCandidates = errors.New("no pre-config scripts found")

// Load returns the regular files in dir whose extension is one of exts,
// sorted with Compare. Extensions match case-insensitively and include
// the dot. Paths are absolute.
func Load(dir string, exts []string) ([]trial.Candidate, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read pre-config directory: %w", err)
	}

	var out []trial.Candidate
	for _, e := range entries {
		if !e.Type().IsRegular() || !hasExtension(e.Name(), exts) {
			continue
		}
		out = append(out, trial.Candidate{
			Name: e.Name(),
			Path: filepath.Join(abs, e.Name()),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s (extensions %s)", ErrNoCandidates, abs, strings.Join(exts, ","))
	}

	slices.SortFunc(out, func(a, b trial.Candidate) int {
		return Compare(a.Name, b.Name)
	})
	return out, nil
}

func hasExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// nameParts is a script name split for ordering, e.g.
// "general_ALT2 (MGTS).bat" has base "general", variant "ALT2" and
// provider "(MGTS)".
type nameParts struct {
	base     string
	variant  string
	provider string
}

func splitName(name string) nameParts {
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	var p nameParts
	main := stem
	if i := strings.IndexByte(stem, '('); i >= 0 {
		main = strings.TrimRight(stem[:i], " ")
		p.provider = stem[i:]
	}
	p.base, p.variant, _ = strings.Cut(main, "_")
	return p
}

// Compare orders pre-config names: by base name, then by variant (the part
// after the first '_'), then the plain script before its "(provider)"
// variants, then by provider. An empty provider sorts first, which puts
// the plain script first. Remaining ties fall back to the full name.
func Compare(a, b string) int {
	pa, pb := splitName(a), splitName(b)
	if c := cmp.Compare(pa.base, pb.base); c != 0 {
		return c
	}
	if c := cmp.Compare(pa.variant, pb.variant); c != 0 {
		return c
	}
	if c := cmp.Compare(pa.provider, pb.provider); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}
