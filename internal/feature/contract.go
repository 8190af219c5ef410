package feature

import (
	"fmt"
	"sort"
	"strings"
)

// ContractViolation reports an exact mismatch between an engineered vector
// and the frozen schema. Any non-empty Missing or Extra set means the record
// must not be scored.
type ContractViolation struct {
	Missing []string
	Extra   []string
}

func (e *ContractViolation) Error() string {
	var b strings.Builder
	b.WriteString("feature contract violation")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %v", e.Missing)
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, ": extra %v", e.Extra)
	}
	return b.String()
}

// ValidateContract checks set equality between the vector's columns and the
// frozen schema. Order does not matter here; the meta assembler enforces
// positional order separately.
func ValidateContract(v *Vector, schema []string) error {
	want := make(map[string]struct{}, len(schema))
	for _, c := range schema {
		want[c] = struct{}{}
	}
	got := v.columnSet()

	var missing, extra []string
	for c := range want {
		if _, ok := got[c]; !ok {
			missing = append(missing, c)
		}
	}
	for c := range got {
		if _, ok := want[c]; !ok {
			extra = append(extra, c)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return &ContractViolation{Missing: missing, Extra: extra}
}
