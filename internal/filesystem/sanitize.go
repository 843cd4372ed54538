package filesystem

import (
	"regexp"
	"strings"
)

var (
	illegalRun = regexp.MustCompile(`[\\/:"*?<>|\x00-\x1f\x7f\x{80}-\x{9f}]+`)
	dotRun     = regexp.MustCompile(`\.{2,}`)
)

// Sanitize turns a user supplied title into a name that is safe as a single
// path segment. Whitespace runs become one space, runs of illegal or control
// characters become "-", and runs of dots become one dot. The result may be
// empty; callers substitute a fallback.
func Sanitize(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	name = illegalRun.ReplaceAllString(name, "-")
	name = dotRun.ReplaceAllString(name, ".")

	return strings.TrimSpace(name)
}
