package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"cognitest_backend/internal/repository"
	"encoding/json"
	"errors"
)

// ItemService 题库维护：录入与分页查询。新题以 normal 标记、空区分度
// 入库，后台统计任务负责其余字段。
type ItemService struct {
	ItemRepo *repository.ItemRepository
	Cfg      *config.Config
}

func NewItemService(itemRepo *repository.ItemRepository, cfg *config.Config) *ItemService {
	return &ItemService{ItemRepo: itemRepo, Cfg: cfg}
}

var validItemTypes = map[string]bool{
	"verbal":  true,
	"numeric": true,
	"spatial": true,
	"logic":   true,
	"memory":  true,
}

type CreateItemInput struct {
	Content        string          `json:"content"`
	Options        json.RawMessage `json:"options"`
	Answer         string          `json:"answer"`
	ItemType       string          `json:"itemType"`
	DifficultyTier string          `json:"difficultyTier"`
	Difficulty     float64         `json:"difficulty"`
}

func (s *ItemService) Create(input *CreateItemInput) (*model.Item, error) {
	if !validItemTypes[input.ItemType] {
		return nil, errors.New("unknown item type: " + input.ItemType)
	}
	if !validDifficultyTier(input.DifficultyTier) {
		return nil, errors.New("unknown difficulty tier: " + input.DifficultyTier)
	}

	item := &model.Item{
		Content:        input.Content,
		Options:        input.Options,
		Answer:         input.Answer,
		ItemType:       input.ItemType,
		DifficultyTier: model.DifficultyTier(input.DifficultyTier),
		Difficulty:     input.Difficulty,
		QualityFlag:    model.FlagNormal,
	}
	if err := s.ItemRepo.Create(item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *ItemService) List(page, limit int) ([]model.Item, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.ItemRepo.List(page, limit)
}

func validDifficultyTier(t string) bool {
	for _, tier := range model.DifficultyTiers {
		if string(tier) == t {
			return true
		}
	}
	return false
}
