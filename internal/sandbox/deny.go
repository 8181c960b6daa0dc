package sandbox

import (
	"path/filepath"
	"strings"
)

// deniedSubstrings must not appear in a command line run on an agent's behalf.
var deniedSubstrings = []string{
	"sqlite3",
	"drop table",
	"delete from",
	"rm -rf /",
	"rm -rf .git",
	"chmod 777",
	"| sh",
	"| bash",
	"eval $(",
	"> /dev/sd",
	"mkfs.",
	":(){ :|:& };:", // fork bomb
}

// deniedGit are git subcommands that rewrite shared history or remotes.
var deniedGit = []string{
	"push --force",
	"push -f",
	"reset --hard",
	"filter-branch",
	"reflog expire",
	"remote remove",
	"remote set-url",
}

// Check reports whether binary+args may run unattended. A blocked command returns the rule
// it matched so the caller can ask a human instead.
func Check(binary string, args []string) (rule string, blocked bool) {
	line := strings.ToLower(strings.TrimSpace(binary + " " + strings.Join(args, " ")))
	for _, deny := range deniedSubstrings {
		if strings.Contains(line, deny) {
			return deny, true
		}
	}
	if filepath.Base(binary) == "git" && len(args) > 0 {
		sub := strings.ToLower(strings.Join(args, " "))
		for _, deny := range deniedGit {
			if strings.HasPrefix(sub, deny) {
				return "git " + deny, true
			}
		}
	}
	return "", false
}
