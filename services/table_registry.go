package services

// TableRegistry is the static set of table numbers 1..N.
type TableRegistry struct {
	count int
}

func NewTableRegistry(count int) *TableRegistry {
	return &TableRegistry{count: count}
}

func (r *TableRegistry) IsValid(table int) bool {
	return table >= 1 && table <= r.count
}

func (r *TableRegistry) Count() int {
	return r.count
}

func (r *TableRegistry) Tables() []int {
	tables := make([]int, r.count)
	for i := range tables {
		tables[i] = i + 1
	}
	return tables
}
