package meta

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deltavault/pkg/core"
	"deltavault/pkg/merkle"
	"deltavault/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrHeadNotFound     = errors.New("document head not found")
	ErrTreeNotFound     = errors.New("tree not found in metadata")
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 对象账本 (去重观测)
// -----------------------------------------------------------------------------

// TrackObject 登记一次对象写入
// 首次出现插入一行 ref_count=1；重复出现只把 ref_count +1 ——
// 物理存储永远只有一份，计数是"省了多少"的证据
func (r *Repository) TrackObject(ctx context.Context, obj core.Object, size int64) error {
	model := ObjectModel{
		Hash:     string(obj.ID()),
		Kind:     string(obj.Type()),
		Size:     size,
		RefCount: 1,
	}
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "hash"}},
			DoUpdates: clause.Assignments(map[string]any{
				"ref_count": gorm.Expr("ref_count + 1"),
			}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to track object %s: %w", obj.ID(), err)
	}
	return nil
}

// RefCount 查询一个对象被引用的次数，未登记返回 0
func (r *Repository) RefCount(ctx context.Context, hash types.NodeHash) (uint32, error) {
	var model ObjectModel
	err := r.db.GetConn().WithContext(ctx).
		Where("hash = ?", string(hash)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return model.RefCount, nil
}

// DedupStats 去重账本的汇总
type DedupStats struct {
	Objects      int64 // 物理对象数
	LogicalBytes int64 // 所有引用如果各存一份需要的字节数
	StoredBytes  int64 // 实际存储的字节数
}

// Saved 去重节省的字节数
func (s DedupStats) Saved() int64 {
	return s.LogicalBytes - s.StoredBytes
}

// Stats 汇总整个对象账本
func (r *Repository) Stats(ctx context.Context) (DedupStats, error) {
	var st DedupStats
	row := r.db.GetConn().WithContext(ctx).
		Model(&ObjectModel{}).
		Select("COUNT(*), COALESCE(SUM(size * ref_count), 0), COALESCE(SUM(size), 0)").
		Row()
	if err := row.Scan(&st.Objects, &st.LogicalBytes, &st.StoredBytes); err != nil {
		return DedupStats{}, fmt.Errorf("failed to aggregate object stats: %w", err)
	}
	return st, nil
}

// -----------------------------------------------------------------------------
// 2. 树索引
// -----------------------------------------------------------------------------

// IndexTree 把一棵已持久化的文档树投影到 SQL (幂等)
func (r *Repository) IndexTree(ctx context.Context, docID types.DocumentID, doc *merkle.DocumentTree, metaJSON []byte) error {
	model := TreeModel{
		RootHash:     string(doc.Root()),
		DocumentID:   string(docID),
		SectionCount: uint32(doc.SectionCount()),
		LeafCount:    doc.LeafCount(),
		Meta:         datatypes.JSON(metaJSON),
		CreatedAt:    time.Now(),
	}
	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "root_hash"}},
			DoNothing: true,
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to index tree %s: %w", doc.Root(), err)
	}
	return nil
}

// GetTree 按根 Hash 查树的投影
func (r *Repository) GetTree(ctx context.Context, root types.NodeHash) (*TreeModel, error) {
	var model TreeModel
	err := r.db.GetConn().WithContext(ctx).
		Where("root_hash = ?", string(root)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTreeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

// ListTrees 按文档列历史版本，时间倒序
func (r *Repository) ListTrees(ctx context.Context, docID types.DocumentID, limit int) ([]TreeModel, error) {
	var trees []TreeModel
	err := r.db.GetConn().WithContext(ctx).
		Where("document_id = ?", string(docID)).
		Order("created_at DESC").
		Limit(limit).
		Find(&trees).Error
	return trees, err
}

// -----------------------------------------------------------------------------
// 3. 文档头指针 (HEAD)
// -----------------------------------------------------------------------------

// GetHead 取文档当前生效的树根
func (r *Repository) GetHead(ctx context.Context, docID types.DocumentID) (*TreeHead, error) {
	var head TreeHead
	err := r.db.GetConn().WithContext(ctx).
		Where("document_id = ?", string(docID)).
		First(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHeadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &head, nil
}

// UpdateHead 原子更新头指针 (CAS - Compare And Swap)
// oldVersion 是之前读到的版本号；库里版本号已经不同说明有并发写入，更新失败
func (r *Repository) UpdateHead(ctx context.Context, docID types.DocumentID, root types.NodeHash, oldVersion int64) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 场景 A: 第一次创建
		if oldVersion == 0 {
			head := TreeHead{
				DocumentID: string(docID),
				RootHash:   string(root),
				Version:    1,
			}
			if err := tx.Create(&head).Error; err != nil {
				// 兼容性: 处理不同数据库 (PG 与 SQLite) 的唯一约束错误
				if errors.Is(err, gorm.ErrDuplicatedKey) ||
					strings.Contains(err.Error(), "UNIQUE constraint failed") {
					return ErrConcurrentUpdate
				}
				return fmt.Errorf("failed to create head: %w", err)
			}
			return nil
		}

		// 场景 B: 带版本检查的更新
		result := tx.Model(&TreeHead{}).
			Where("document_id = ? AND version = ?", string(docID), oldVersion).
			Updates(map[string]any{
				"root_hash":  string(root),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}

		// 影响行数为 0 说明 version 不匹配 (被人抢先改了)
		if result.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		return nil
	})
}
