package database

// Repository is a thin generic CRUD gateway. Every method takes the shard
// explicitly, so an access path that forgot its shard does not compile
// instead of silently reading another tenant's data.
type Repository[T any] struct {
	reg *Registry
}

func NewRepository[T any](reg *Registry) *Repository[T] {
	return &Repository[T]{reg: reg}
}

func (r *Repository[T]) Get(shard ShardKey, id uint) (*T, error) {
	db, err := r.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	var record T
	if err := db.First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *Repository[T]) List(shard ShardKey, conds ...interface{}) ([]T, error) {
	db, err := r.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	var records []T
	if err := db.Find(&records, conds...).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository[T]) Create(shard ShardKey, record *T) error {
	db, err := r.reg.Resolve(shard)
	if err != nil {
		return err
	}
	return db.Create(record).Error
}

func (r *Repository[T]) Save(shard ShardKey, record *T) error {
	db, err := r.reg.Resolve(shard)
	if err != nil {
		return err
	}
	return db.Save(record).Error
}

func (r *Repository[T]) Delete(shard ShardKey, id uint) error {
	db, err := r.reg.Resolve(shard)
	if err != nil {
		return err
	}
	var record T
	return db.Delete(&record, id).Error
}
