package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"TaxAdvisor/internal/portfolio"
)

// Seed 是种子文件的结构。
type Seed struct {
	Positions     []SeedPosition     `yaml:"positions"`
	RealizedGains []SeedRealizedGain `yaml:"realized_gains"`
}

// SeedPosition 描述一条持仓种子。金额以字符串书写，避免浮点误差。
type SeedPosition struct {
	UserID       string `yaml:"user_id"`
	Market       string `yaml:"market"`
	StockName    string `yaml:"stock_name"`
	AveragePrice string `yaml:"average_price"`
	CurrentPrice string `yaml:"current_price"`
	Quantity     int64  `yaml:"quantity"`
}

// SeedRealizedGain 描述一条已实现损益种子，日期格式为 2006-01-02。
type SeedRealizedGain struct {
	UserID       string `yaml:"user_id"`
	StockName    string `yaml:"stock_name"`
	GainAmount   string `yaml:"gain_amount"`
	RealizedDate string `yaml:"realized_date"`
}

// Repository 以内存方式保存持仓与已实现损益，按插入顺序返回。
type Repository struct {
	mu        sync.RWMutex
	positions []portfolio.Position
	gains     []portfolio.RealizedGain
}

// NewRepository 创建空仓库。
func NewRepository() *Repository {
	return &Repository{}
}

// LoadFile 读取 YAML 种子文件并创建仓库。
func LoadFile(path string) (*Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取种子文件失败: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("解析种子文件失败: %w", err)
	}
	repo := NewRepository()
	if err := repo.Apply(seed); err != nil {
		return nil, fmt.Errorf("种子文件 %s 无效: %w", path, err)
	}
	return repo, nil
}

// Apply 将种子数据追加到仓库中。
func (r *Repository) Apply(seed Seed) error {
	positions := make([]portfolio.Position, 0, len(seed.Positions))
	for i, sp := range seed.Positions {
		avg, err := decimal.NewFromString(strings.TrimSpace(sp.AveragePrice))
		if err != nil {
			return fmt.Errorf("positions[%d].average_price: %w", i, err)
		}
		cur, err := decimal.NewFromString(strings.TrimSpace(sp.CurrentPrice))
		if err != nil {
			return fmt.Errorf("positions[%d].current_price: %w", i, err)
		}
		market := portfolio.Market(strings.ToUpper(strings.TrimSpace(sp.Market)))
		if market != portfolio.MarketKR && market != portfolio.MarketUS {
			return fmt.Errorf("positions[%d].market: 不支持的市场 %q", i, sp.Market)
		}
		positions = append(positions, portfolio.Position{
			UserID:       sp.UserID,
			Market:       market,
			StockName:    sp.StockName,
			AveragePrice: avg,
			CurrentPrice: cur,
			Quantity:     sp.Quantity,
		})
	}

	gains := make([]portfolio.RealizedGain, 0, len(seed.RealizedGains))
	for i, sg := range seed.RealizedGains {
		amount, err := decimal.NewFromString(strings.TrimSpace(sg.GainAmount))
		if err != nil {
			return fmt.Errorf("realized_gains[%d].gain_amount: %w", i, err)
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(sg.RealizedDate))
		if err != nil {
			return fmt.Errorf("realized_gains[%d].realized_date: %w", i, err)
		}
		gains = append(gains, portfolio.RealizedGain{
			UserID:       sg.UserID,
			StockName:    sg.StockName,
			GainAmount:   amount,
			RealizedDate: date,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, positions...)
	r.gains = append(r.gains, gains...)
	return nil
}

// AddPosition 追加一条持仓。
func (r *Repository) AddPosition(p portfolio.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, p)
}

// AddRealizedGain 追加一条已实现损益。
func (r *Repository) AddRealizedGain(g portfolio.RealizedGain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gains = append(r.gains, g)
}

// FindPortfolio 实现 portfolio.Repository。
func (r *Repository) FindPortfolio(_ context.Context, userID string) ([]portfolio.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []portfolio.Position
	for _, p := range r.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// FindRealizedGains 实现 portfolio.Repository。
func (r *Repository) FindRealizedGains(_ context.Context, userID string) ([]portfolio.RealizedGain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []portfolio.RealizedGain
	for _, g := range r.gains {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

var _ portfolio.Repository = (*Repository)(nil)
