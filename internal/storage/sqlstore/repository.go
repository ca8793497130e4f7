package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"TaxAdvisor/internal/portfolio"
)

const dateLayout = "2006-01-02"

// Repository 基于 database/sql 实现 portfolio.Repository。
type Repository struct {
	db *sql.DB
}

// Open 建立连接并执行嵌入的迁移。
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo, err := NewRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepository 在已有连接上执行迁移并返回仓库。
func NewRepository(ctx context.Context, db *sql.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("数据库连接不能为空")
	}
	if err := runMigrations(ctx, db, embeddedMigrations); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// FindPortfolio 按主键顺序返回用户持仓。
func (r *Repository) FindPortfolio(ctx context.Context, userID string) ([]portfolio.Position, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, market, stock_name, average_price, current_price, quantity
FROM portfolio WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("查询持仓失败: %w", err)
	}
	defer rows.Close()

	var positions []portfolio.Position
	for rows.Next() {
		var (
			p      portfolio.Position
			market string
		)
		if err := rows.Scan(&p.UserID, &market, &p.StockName, &p.AveragePrice, &p.CurrentPrice, &p.Quantity); err != nil {
			return nil, fmt.Errorf("解析持仓失败: %w", err)
		}
		p.Market = portfolio.Market(strings.ToUpper(strings.TrimSpace(market)))
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历持仓失败: %w", err)
	}
	return positions, nil
}

// FindRealizedGains 按主键顺序返回用户的已实现损益。
func (r *Repository) FindRealizedGains(ctx context.Context, userID string) ([]portfolio.RealizedGain, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, stock_name, gain_amount, realized_date
FROM realized_gain WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("查询已实现损益失败: %w", err)
	}
	defer rows.Close()

	var gains []portfolio.RealizedGain
	for rows.Next() {
		var (
			g       portfolio.RealizedGain
			amount  decimal.Decimal
			rawDate any
		)
		if err := rows.Scan(&g.UserID, &g.StockName, &amount, &rawDate); err != nil {
			return nil, fmt.Errorf("解析已实现损益失败: %w", err)
		}
		date, err := parseDate(rawDate)
		if err != nil {
			return nil, err
		}
		g.GainAmount = amount
		g.RealizedDate = date
		gains = append(gains, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历已实现损益失败: %w", err)
	}
	return gains, nil
}

// Close 关闭底层连接。
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// parseDate 兼容驱动返回的 time.Time、字符串与字节切片。
func parseDate(value any) (time.Time, error) {
	var text string
	switch v := value.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return time.Time{}, fmt.Errorf("无法识别的日期类型 %T", value)
	}
	text = strings.TrimSpace(text)
	if len(text) > len(dateLayout) {
		text = text[:len(dateLayout)]
	}
	date, err := time.Parse(dateLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析日期 %q 失败: %w", text, err)
	}
	return date, nil
}

var _ portfolio.Repository = (*Repository)(nil)
