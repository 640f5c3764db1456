package cachemap

// AOT method operation: a comma-separated method spec with
// wildcards, "[!]class[.method[(sig)]]", walked against every indexed
// COMPILED_METHOD record and applied as invalidate, revalidate, or a
// dry-run log. Wildcard matching reuses path.Match the way the pack's own
// fsutil/glob.go does for path-style wildcards, rather than pulling in a
// dedicated glob library no example repo uses; class specs get their '/'
// escaped first so a bare "*" still spans package segments.

import (
	"fmt"
	"path"
	"strings"

	"github.com/Voskan/scc-cachemap/internal/manager"
)

// AOTAction selects what ApplyAOTMethodSpec does with each match.
type AOTAction int

const (
	AOTInvalidate AOTAction = iota
	AOTRevalidate
	AOTLogOnly
)

type methodSpecTerm struct {
	negate     bool
	classSpec  string
	methodSpec string
	sigSpec    string
}

// parseMethodSpec parses one comma-separated term of the overall spec.
// Any field left blank matches everything (equivalent to "*").
func parseMethodSpec(term string) methodSpecTerm {
	t := methodSpecTerm{classSpec: "*", methodSpec: "*", sigSpec: "*"}
	if strings.HasPrefix(term, "!") {
		t.negate = true
		term = term[1:]
	}
	if term == "" {
		return t
	}

	sigStart := strings.IndexByte(term, '(')
	sig := ""
	if sigStart >= 0 {
		if sigEnd := strings.IndexByte(term, ')'); sigEnd > sigStart {
			sig = term[sigStart+1 : sigEnd]
			term = term[:sigStart]
		}
	}
	if sig != "" {
		t.sigSpec = sig
	}

	dot := strings.LastIndexByte(term, '.')
	if dot < 0 {
		t.classSpec = term
		return t
	}
	t.classSpec = term[:dot]
	t.methodSpec = term[dot+1:]
	return t
}

// classPathSeparator is swapped in for '/' before calling path.Match so a
// bare "*" in a class spec also crosses package boundaries: ClassName is
// stored in JVM internal form (com/acme/Widget), and path.Match's "*" is
// defined to never match a path separator, which would make "com/acme/*"
// reject anything but single-segment classes directly under acme.
const classPathSeparator = "\x00"

func escapeClassSeparators(s string) string {
	return strings.ReplaceAll(s, "/", classPathSeparator)
}

func (t methodSpecTerm) matches(rec *manager.CompiledMethodRecord) bool {
	classMatch, _ := path.Match(escapeClassSeparators(t.classSpec), escapeClassSeparators(rec.ClassName))
	methodMatch, _ := path.Match(t.methodSpec, rec.MethodName)
	sigMatch, _ := path.Match(t.sigSpec, rec.Signature)
	m := classMatch && methodMatch && sigMatch
	if t.negate {
		return !m
	}
	return m
}

// ApplyAOTMethodSpec parses spec as a comma-separated list of method-spec
// terms and applies action to every COMPILED_METHOD record any term
// matches. AOTLogOnly returns the matches without mutating anything, for a
// dry-run listing.
func (cm *CacheMap) ApplyAOTMethodSpec(spec string, action AOTAction) ([]*manager.CompiledMethodRecord, error) {
	terms := make([]methodSpecTerm, 0)
	for _, t := range strings.Split(spec, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		terms = append(terms, parseMethodSpec(t))
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("cachemap: empty AOT method spec")
	}

	var matched []*manager.CompiledMethodRecord
	for _, rec := range cm.mgrs.CompiledMethod.All() {
		for _, t := range terms {
			if t.matches(rec) {
				matched = append(matched, rec)
				break
			}
		}
	}

	switch action {
	case AOTInvalidate, AOTRevalidate:
		top := cm.chain.Top()
		if _, err := top.AcquireWrite(cm.jvmSlot); err != nil {
			return nil, err
		}
		defer top.ReleaseWrite(cm.jvmSlot)

		if action == AOTInvalidate {
			for _, rec := range matched {
				if !rec.Invalidated {
					cm.mgrs.CompiledMethod.Invalidate(rec)
				}
			}
		} else {
			for _, rec := range matched {
				if rec.Invalidated {
					cm.mgrs.CompiledMethod.Revalidate(rec)
				}
			}
		}
	case AOTLogOnly:
		// no mutation; caller inspects the returned slice.
	}
	return matched, nil
}
