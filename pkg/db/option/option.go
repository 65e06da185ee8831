package option

import (
	"strconv"
	"strings"

	"github.com/FESP32/clientela-pro-sub001/pkg/db/pagination"
	"gorm.io/gorm"
)

// Option mutates a gorm query before execution.
type Option func(*gorm.DB) *gorm.DB

// QuerySortBy restricts sortable columns to an allow-list.
type QuerySortBy struct {
	Field string
	Desc  bool
	Allow map[string]bool
}

// WithSortBy orders results by an allow-listed column, newest first by default.
func WithSortBy(sort QuerySortBy) Option {
	return func(tx *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.Field)
		if field == "" {
			field = "created_at"
		}
		if sort.Allow != nil && !sort.Allow[field] {
			field = "created_at"
		}
		direction := "DESC"
		if !sort.Desc && field != "created_at" {
			direction = "ASC"
		}
		// id breaks ties so keyset pagination sees a total order.
		return tx.Order(field + " " + direction).Order("id " + direction)
	}
}

// ApplyPagination applies cursor pagination. One extra row is fetched so the
// caller can detect whether more pages exist.
func ApplyPagination(page pagination.Pagination) Option {
	return func(tx *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 50
		}
		if token := strings.TrimSpace(page.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil {
				// Snowflake ids are time-ordered, so the id alone is a
				// stable keyset; created_at in the cursor is informational.
				if id, perr := strconv.ParseInt(cursor.ID, 10, 64); perr == nil {
					tx = tx.Where("id < ?", id)
				}
			}
		}
		return tx.Limit(size + 1)
	}
}

// WithLimit caps the result size without pagination bookkeeping.
func WithLimit(limit int) Option {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	}
}
