package repo

import (
	"strconv"
	"strings"

	"github.com/familyassistant/server/internal/model"
)

// setBuilder collects "column = $n" assignments for an UPDATE.
// Column names only ever come from the fixed lists in this package.
type setBuilder struct {
	sets []string
	args []any
}

func (b *setBuilder) add(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, column+" = $"+strconv.Itoa(len(b.args)))
}

// arg appends a bare argument (for WHERE) and returns its placeholder
func (b *setBuilder) arg(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *setBuilder) clause() string {
	return strings.Join(b.sets, ", ")
}

func (b *setBuilder) empty() bool {
	return len(b.sets) == 0
}

// addOptional appends the assignment when the field was present; explicit null writes NULL.
func addOptional[T any](b *setBuilder, column string, o model.Optional[T]) {
	if !o.Set {
		return
	}
	if o.Null {
		b.add(column, nil)
		return
	}
	b.add(column, o.Value)
}
