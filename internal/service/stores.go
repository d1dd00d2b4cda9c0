package service

import (
	"github.com/uwscope/scope-web-sub000/internal/repository"
)

// Stores builds a DocumentStore per patient collection with shared options.
type Stores struct {
	db   repository.Database
	opts []repository.StoreOption
}

func NewStores(db repository.Database, opts ...repository.StoreOption) *Stores {
	return &Stores{db: db, opts: opts}
}

func (s *Stores) Store(collection string) *repository.DocumentStore {
	return repository.NewDocumentStore(s.db.Collection(collection), s.opts...)
}

func (s *Stores) Database() repository.Database { return s.db }
