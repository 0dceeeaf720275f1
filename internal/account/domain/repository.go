package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	Update(ctx context.Context, db *gorm.DB, account *Account) error
	Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Account, error)
	FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*Account, error)
	FindByIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]*Account, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListAccountRequest) ([]*Account, error)
	CountChildren(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (int64, error)
	// CountLineReferences counts journal lines on the account; postedOnly
	// restricts the count to entries that reached posting.
	CountLineReferences(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, postedOnly bool) (int64, error)
}
