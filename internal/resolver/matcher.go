package resolver

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/hemmy-platform/hemmy-authz/internal/authz"
)

// Matcher decides whether a single permission covers the requested action on
// the requested subject. It must be a pure, total function: the mapping from
// action/subject pairs to permission codes is configuration owned by the
// calling system, not by this core.
type Matcher func(perm authz.Permission, action, subject string) bool

// foldCase case-folds s for comparison. A cases.Caser carries transformer
// state and is not safe for concurrent use, so every call folds with a fresh
// one; construction is cheap.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// DefaultMatcher implements the house convention of "subject:action"
// permission codes ("users:read", "billing:write"). A code of
// "subject:*" covers every action on that subject. Comparison uses Unicode
// case folding so stored codes and requested pairs need not agree on case.
func DefaultMatcher(perm authz.Permission, action, subject string) bool {
	code := foldCase(perm.Code)
	want := foldCase(subject) + ":"
	if !strings.HasPrefix(code, want) {
		return false
	}
	rest := code[len(want):]
	return rest == "*" || rest == foldCase(action)
}
