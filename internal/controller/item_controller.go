package controller

import (
	"cognitest_backend/internal/service"
	"cognitest_backend/internal/util"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ItemController struct {
	ItemService    *service.ItemService
	QualityService *service.ItemQualityService
	Selector       *service.ItemSelectorService
}

func NewItemController(
	itemService *service.ItemService,
	qualityService *service.ItemQualityService,
	selector *service.ItemSelectorService,
) *ItemController {
	return &ItemController{
		ItemService:    itemService,
		QualityService: qualityService,
		Selector:       selector,
	}
}

// swagger:model CreateItemRequest
type CreateItemRequest struct {
	Content        string          `json:"content" binding:"required"`
	Options        json.RawMessage `json:"options"`
	Answer         string          `json:"answer" binding:"required"`
	ItemType       string          `json:"itemType" binding:"required"`
	DifficultyTier string          `json:"difficultyTier" binding:"required"`
	Difficulty     float64         `json:"difficulty"`
}

// CreateItem godoc
// @Summary 录入题目
// @Description 新题以 normal 标记入库，区分度由后台统计任务计算
// @Tags 题库
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreateItemRequest true "题目内容"
// @Success 201 {object} util.Response{data=model.Item} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/admin/items [post]
func (c *ItemController) CreateItem(ctx *gin.Context) {
	var req CreateItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	item, err := c.ItemService.Create(&service.CreateItemInput{
		Content:        req.Content,
		Options:        req.Options,
		Answer:         req.Answer,
		ItemType:       req.ItemType,
		DifficultyTier: req.DifficultyTier,
		Difficulty:     req.Difficulty,
	})
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Created(ctx, item)
}

// ListItems godoc
// @Summary 分页查询题目
// @Tags 题库
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/admin/items [get]
func (c *ItemController) ListItems(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	items, total, err := c.ItemService.List(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  items,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// swagger:model OverrideFlagRequest
type OverrideFlagRequest struct {
	QualityFlag string  `json:"qualityFlag" binding:"required"`
	Reason      *string `json:"reason"`
}

// OverrideQualityFlag godoc
// @Summary 人工覆写题目质量标记
// @Description 停用题目时必须给出理由
// @Tags 题库
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param itemId path int true "题目ID"
// @Param body body OverrideFlagRequest true "目标标记"
// @Success 200 {object} util.Response{data=model.FlagDecision}
// @Failure 400 {object} util.Response "非法标记值"
// @Failure 404 {object} util.Response "题目不存在"
// @Failure 422 {object} util.Response "缺少停用理由"
// @Router /api/admin/items/{itemId}/quality-flag [patch]
func (c *ItemController) OverrideQualityFlag(ctx *gin.Context) {
	itemID, err := strconv.ParseUint(ctx.Param("itemId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid item id")
		return
	}

	var req OverrideFlagRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	decision, err := c.QualityService.ManualOverride(uint(itemID), req.QualityFlag, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidQualityFlag):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrFlagReasonRequired):
			util.UnprocessableEntity(ctx, err.Error())
		case errors.Is(err, util.ErrItemNotFound):
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, decision)
}

// swagger:model BuildFormRequest
type BuildFormRequest struct {
	ItemsPerTier int `json:"itemsPerTier" binding:"required,min=1,max=20"`
}

// BuildFixedForm godoc
// @Summary 固定卷组卷
// @Description 每个难度层按区分度优先挑选指定数量的题目
// @Tags 题库
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body BuildFormRequest true "组卷参数"
// @Success 200 {object} util.Response{data=object}
// @Router /api/admin/forms/build [post]
func (c *ItemController) BuildFixedForm(ctx *gin.Context) {
	var req BuildFormRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	form, err := c.Selector.BuildFixedForm(req.ItemsPerTier)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"itemCount": len(form),
		"items":     form,
	})
}
