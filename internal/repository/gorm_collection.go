package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/ids"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

// GormDatabase keeps every collection in the documents table.
type GormDatabase struct {
	db  *gorm.DB
	ids ids.Generator
}

func NewGormDatabase(db *gorm.DB, gen ids.Generator) *GormDatabase {
	return &GormDatabase{db: db, ids: gen}
}

func (d *GormDatabase) Collection(name string) Collection {
	return &GormCollection{db: d.db, name: name}
}

func (d *GormDatabase) EnsureCollection(ctx context.Context, name string) error {
	coll := d.Collection(name)
	none := ""
	existing, err := coll.Find(ctx, Query{Type: model.TypeSentinel, SetID: &none})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	err = coll.InsertOne(ctx, sentinel(d.ids.NewID()))
	if errors.Is(err, errs.ErrDuplicateKey) {
		return nil
	}
	return err
}

func (d *GormDatabase) CollectionNames(ctx context.Context) ([]string, error) {
	var names []string
	err := d.db.WithContext(ctx).
		Model(&model.DocumentRow{}).
		Where("type = ?", model.TypeSentinel).
		Distinct().
		Order("collection ASC").
		Pluck("collection", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

// GormCollection is one logical collection inside the documents table.
type GormCollection struct {
	db   *gorm.DB
	name string
}

func (c *GormCollection) Name() string { return c.name }

func (c *GormCollection) InsertOne(ctx context.Context, doc model.Document) error {
	row, err := toRow(c.name, doc)
	if err != nil {
		return err
	}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s rev %d", errs.ErrDuplicateKey, doc.Identity(), doc.Rev)
		}
		return fmt.Errorf("insert %s rev %d: %w", doc.Identity(), doc.Rev, err)
	}
	return nil
}

func (c *GormCollection) Find(ctx context.Context, q Query) ([]model.Document, error) {
	tx := c.db.WithContext(ctx).Where("collection = ?", c.name)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.SetID != nil {
		tx = tx.Where("set_id = ?", *q.SetID)
	}
	for _, k := range sortedKeys(q.Fields) {
		tx = tx.Where(datatypes.JSONQuery("body").Equals(q.Fields[k], k))
	}

	var rows []model.DocumentRow
	if err := tx.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	return fromRows(rows)
}

func (c *GormCollection) FindLatest(ctx context.Context, q Query) ([]model.Document, error) {
	latest := c.db.Model(&model.DocumentRow{}).
		Select("type, set_id, MAX(rev) AS rev").
		Where("collection = ?", c.name)
	if q.Type != "" {
		latest = latest.Where("type = ?", q.Type)
	}
	if q.SetID != nil {
		latest = latest.Where("set_id = ?", *q.SetID)
	}
	latest = latest.Group("type, set_id")

	tx := c.db.WithContext(ctx).
		Table("documents").
		Select("documents.*").
		Joins("JOIN (?) AS latest ON documents.type = latest.type AND documents.set_id = latest.set_id AND documents.rev = latest.rev", latest).
		Where("documents.collection = ?", c.name)
	for _, k := range sortedKeys(q.Fields) {
		tx = tx.Where(datatypes.JSONQuery("documents.body").Equals(q.Fields[k], k))
	}

	var rows []model.DocumentRow
	if err := tx.Order("documents.id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find latest in %s: %w", c.name, err)
	}
	return fromRows(rows)
}

func toRow(collection string, doc model.Document) (model.DocumentRow, error) {
	body, err := json.Marshal(model.CloneBody(doc.Body))
	if err != nil {
		return model.DocumentRow{}, fmt.Errorf("encode body of %s: %w", doc.Identity(), err)
	}
	created, err := ids.TimeOf(doc.ID)
	if err != nil {
		created = time.Now().UTC()
	}
	return model.DocumentRow{
		ID:         doc.ID,
		Collection: collection,
		Type:       doc.Type,
		SetID:      doc.SetID,
		Rev:        doc.Rev,
		Deleted:    doc.Deleted,
		Body:       datatypes.JSON(body),
		CreatedAt:  created,
	}, nil
}

func fromRows(rows []model.DocumentRow) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(rows))
	for _, r := range rows {
		body := map[string]any{}
		if len(r.Body) > 0 {
			if err := json.Unmarshal(r.Body, &body); err != nil {
				return nil, fmt.Errorf("decode body of %s: %w", r.ID, err)
			}
		}
		docs = append(docs, model.Document{
			ID:      r.ID,
			Type:    r.Type,
			Rev:     r.Rev,
			SetID:   r.SetID,
			Deleted: r.Deleted,
			Body:    body,
		})
	}
	return docs, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
