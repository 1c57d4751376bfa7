// Package grouping proposes tab groups from auto_group rules and picks the
// colors groups are listed with.
package grouping

import (
	"regexp"
	"sort"

	"github.com/b/tmux-tabgroups/pkg/config"
	"github.com/b/tmux-tabgroups/pkg/tmux"
	"github.com/b/tmux-tabgroups/pkg/window"
)

// Proposal is a set of windows one rule would group together.
type Proposal struct {
	Name    string
	Session string
	Windows []tmux.Window
}

// Identifiers returns the windows in index order, ready for createTabGroup.
func (p Proposal) Identifiers() []window.Identifier {
	ids := make([]window.Identifier, len(p.Windows))
	for i, w := range p.Windows {
		ids[i] = w.Identifier()
	}
	return ids
}

// Propose matches each window against rules in order; the first match wins.
// Windows already in a group and windows created by tabgroupd are skipped.
// Matches are split per session, and only sets of two or more windows are
// proposed.
func Propose(windows []tmux.Window, rules []config.Rule) []Proposal {
	compiled := make([]*regexp.Regexp, len(rules))
	for i, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			continue
		}
		compiled[i] = re
	}

	type key struct {
		rule    int
		session string
	}
	var order []key
	buckets := make(map[key]*Proposal)

	for _, win := range windows {
		if win.Parent != "" || win.Chrome {
			continue
		}
		for i, re := range compiled {
			if re == nil || !re.MatchString(win.Name) {
				continue
			}
			k := key{rule: i, session: win.Session}
			p, ok := buckets[k]
			if !ok {
				p = &Proposal{Name: rules[i].Name, Session: win.Session}
				buckets[k] = p
				order = append(order, k)
			}
			p.Windows = append(p.Windows, win)
			break
		}
	}

	var result []Proposal
	for _, k := range order {
		p := buckets[k]
		if len(p.Windows) < 2 {
			continue
		}
		// Sort windows by index within each group
		sort.Slice(p.Windows, func(i, j int) bool {
			return p.Windows[i].Index < p.Windows[j].Index
		})
		result = append(result, *p)
	}
	return result
}
