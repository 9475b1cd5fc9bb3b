package exec

import (
	"fmt"
	"regexp"

	"github.com/sievedb/sieve/core"
)

// RewriteRule is a logical rewrite spliced into the default planning chain.
// Rules run in order on the statement before the engine compiles it.
type RewriteRule interface {
	Name() string
	Rewrite(sql string, tables map[string]core.TableProvider) (string, error)
}

var joinPattern = regexp.MustCompile(`(?i)\bFROM\s+(\w+)\s+JOIN\s+(\w+)\s+ON\b`)

// JoinReorderRule places the smaller of two joined relations on the right
// so the engine builds its hash table from the smaller input. Appended to
// the rule set whenever caller-supplied rewrite rules are installed.
type JoinReorderRule struct{}

func (JoinReorderRule) Name() string { return "join_reorder" }

func (JoinReorderRule) Rewrite(sql string, tables map[string]core.TableProvider) (string, error) {
	return joinPattern.ReplaceAllStringFunc(sql, func(m string) string {
		sub := joinPattern.FindStringSubmatch(m)
		left, right := sub[1], sub[2]
		lt, lok := tables[left]
		rt, rok := tables[right]
		if !lok || !rok {
			return m
		}
		ls, rs := lt.Statistics(), rt.Statistics()
		if ls == nil || rs == nil {
			return m
		}
		if ls.Rows < rs.Rows {
			return fmt.Sprintf("FROM %s JOIN %s ON", right, left)
		}
		return m
	}), nil
}
