package controller

import (
	"cognitest_backend/internal/service"
	"cognitest_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type AdaptiveController struct {
	AdaptiveService *service.AdaptiveService
}

func NewAdaptiveController(adaptiveService *service.AdaptiveService) *AdaptiveController {
	return &AdaptiveController{AdaptiveService: adaptiveService}
}

// StartTest godoc
// @Summary 开始自适应测验
// @Description 创建会话并返回第一题；题池为空时测验立即结束
// @Tags 自适应测验
// @Produce json
// @Security ApiKeyAuth
// @Success 201 {object} util.Response{data=service.StartAdaptiveResponse}
// @Failure 401 {object} util.Response "未授权"
// @Router /api/adaptive/sessions [post]
func (c *AdaptiveController) StartTest(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	resp, err := c.AdaptiveService.StartAdaptive(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, resp)
}

// SubmitAnswer godoc
// @Summary 提交作答并获取下一题
// @Description 同一题重复提交幂等；达到停止条件时返回最终分数
// @Tags 自适应测验
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param sessionId path string true "会话ID"
// @Param body body service.SubmitAndAdvanceRequest true "作答内容"
// @Success 200 {object} util.Response{data=service.SubmitAndAdvanceResponse}
// @Failure 400 {object} util.Response "题目与当前待答题不符"
// @Failure 404 {object} util.Response "会话不存在"
// @Failure 409 {object} util.Response "会话已结束"
// @Router /api/adaptive/sessions/{sessionId}/responses [post]
func (c *AdaptiveController) SubmitAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID := ctx.Param("sessionId")

	var req service.SubmitAndAdvanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	resp, err := c.AdaptiveService.SubmitAndAdvance(sessionID, user.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound), errors.Is(err, util.ErrItemNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrSessionNotInProgress):
			util.Conflict(ctx, err.Error())
		case errors.Is(err, util.ErrItemNotInSession):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, resp)
}

// AbandonTest godoc
// @Summary 放弃测验
// @Description 单向转移，已结束的会话不能放弃
// @Tags 自适应测验
// @Produce json
// @Security ApiKeyAuth
// @Param sessionId path string true "会话ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response "会话不存在"
// @Failure 409 {object} util.Response "会话已结束"
// @Router /api/adaptive/sessions/{sessionId}/abandon [post]
func (c *AdaptiveController) AbandonTest(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID := ctx.Param("sessionId")

	if err := c.AdaptiveService.Abandon(sessionID, user.UserID); err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrSessionAlreadyDone):
			util.Conflict(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"status": "abandoned"})
}

// GetSession godoc
// @Summary 查询会话状态
// @Description 会话当前能力估计、进度与最终结果（如已完成）
// @Tags 自适应测验
// @Produce json
// @Security ApiKeyAuth
// @Param sessionId path string true "会话ID"
// @Success 200 {object} util.Response{data=model.TestSession}
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/adaptive/sessions/{sessionId} [get]
func (c *AdaptiveController) GetSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID := ctx.Param("sessionId")

	sess, err := c.AdaptiveService.GetSession(sessionID, user.UserID)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, sess)
}
