package controller

import (
	"cognitest_backend/internal/service"
	"cognitest_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AnalyticsController struct {
	ReportService *service.ReportService
}

func NewAnalyticsController(reportService *service.ReportService) *AnalyticsController {
	return &AnalyticsController{ReportService: reportService}
}

// @Summary 区分度总览报表
// @Description 全题库区分度分级统计、分组均值、待处理题目清单和30天趋势
// @Tags 分析
// @Produce json
// @Security ApiKeyAuth
// @Param minResponses query int false "参与评级的最少作答数，0为默认"
// @Success 200 {object} util.Response{data=model.DiscriminationReport}
// @Router /api/admin/analytics/discrimination-report [get]
func (c *AnalyticsController) DiscriminationReport(ctx *gin.Context) {
	minResponses, _ := strconv.Atoi(ctx.DefaultQuery("minResponses", "0"))

	report, err := c.ReportService.DiscriminationReport(ctx.Request.Context(), minResponses)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, report)
}

// @Summary 单题区分度详情
// @Description 单题的分级、百分位、同组均值和历史快照
// @Tags 分析
// @Produce json
// @Security ApiKeyAuth
// @Param itemId path int true "题目ID"
// @Success 200 {object} util.Response{data=model.ItemDiscriminationDetail}
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/admin/analytics/discrimination/{itemId} [get]
func (c *AnalyticsController) ItemDetail(ctx *gin.Context) {
	itemID, err := strconv.ParseUint(ctx.Param("itemId"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid item id")
		return
	}

	detail, err := c.ReportService.ItemDetail(uint(itemID))
	if err != nil {
		if errors.Is(err, util.ErrItemNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, detail)
}

// @Summary 信度报表
// @Description 内部一致性、重测、分半三个系数的合并报告及建议
// @Tags 分析
// @Produce json
// @Security ApiKeyAuth
// @Param minSessions query int false "最少会话数，0为默认"
// @Param minRetestPairs query int false "最少重测配对数，0为默认"
// @Param storeMetrics query bool false "是否写入信度历史" default(true)
// @Success 200 {object} util.Response{data=model.ReliabilityReport}
// @Router /api/admin/analytics/reliability-report [get]
func (c *AnalyticsController) ReliabilityReport(ctx *gin.Context) {
	minSessions, _ := strconv.Atoi(ctx.DefaultQuery("minSessions", "0"))
	minPairs, _ := strconv.Atoi(ctx.DefaultQuery("minRetestPairs", "0"))
	persist := ctx.DefaultQuery("storeMetrics", "true") != "false"

	report, err := c.ReportService.ReliabilityReport(minSessions, minPairs, persist)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, report)
}

// @Summary 信度历史
// @Description 按类型与时间窗口查询历史信度记录
// @Tags 分析
// @Produce json
// @Security ApiKeyAuth
// @Param type query string false "指标类型" Enums(alpha, test_retest, split_half)
// @Param days query int false "时间窗口（天）" default(90)
// @Success 200 {object} util.Response{data=[]model.ReliabilityMetric}
// @Failure 400 {object} util.Response "非法指标类型"
// @Router /api/admin/analytics/reliability-history [get]
func (c *AnalyticsController) ReliabilityHistory(ctx *gin.Context) {
	metricType := ctx.Query("type")
	days, _ := strconv.Atoi(ctx.DefaultQuery("days", "90"))

	metrics, err := c.ReportService.ReliabilityHistory(metricType, days)
	if err != nil {
		if errors.Is(err, util.ErrInvalidMetricType) {
			util.BadRequest(ctx, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, metrics)
}
