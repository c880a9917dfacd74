package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"cognitest_backend/internal/repository"
	"cognitest_backend/internal/util"
	"cognitest_backend/pkg/logger"
	"cognitest_backend/pkg/monitoring"
	"encoding/json"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdaptiveService 驱动单次测验的状态机：
// initialized → selecting → awaiting_response → updating → (selecting | completed)，
// abandoned 可从任一非终态进入。同一会话的推进严格串行，由
// SessionRepository 的条件更新保证；不同会话完全独立。
//
// 能力估计采用 EAP：theta 网格 [-4,4] 上以标准正态为先验、2PL 作答
// 似然求后验均值与后验标准差。EAP 从第一题起即有定义（全对/全错
// 不发散），先验同时给出初始状态 theta=0、SE=1。
type AdaptiveService struct {
	SessionRepo  *repository.SessionRepository
	ResponseRepo *repository.ResponseRepository
	ItemRepo     *repository.ItemRepository
	Selector     *ItemSelectorService
	Precision    *PrecisionService
	Cfg          *config.Config
}

func NewAdaptiveService(
	sessionRepo *repository.SessionRepository,
	responseRepo *repository.ResponseRepository,
	itemRepo *repository.ItemRepository,
	selector *ItemSelectorService,
	precision *PrecisionService,
	cfg *config.Config,
) *AdaptiveService {
	return &AdaptiveService{
		SessionRepo:  sessionRepo,
		ResponseRepo: responseRepo,
		ItemRepo:     itemRepo,
		Selector:     selector,
		Precision:    precision,
		Cfg:          cfg,
	}
}

// ItemView 下发给考生的题目视图，不含答案
type ItemView struct {
	ID             uint            `json:"id"`
	Content        string          `json:"content"`
	Options        json.RawMessage `json:"options,omitempty"`
	ItemType       string          `json:"itemType"`
	DifficultyTier string          `json:"difficultyTier"`
}

func toItemView(item *model.Item) *ItemView {
	if item == nil {
		return nil
	}
	return &ItemView{
		ID:             item.ID,
		Content:        item.Content,
		Options:        item.Options,
		ItemType:       item.ItemType,
		DifficultyTier: string(item.DifficultyTier),
	}
}

type StartAdaptiveResponse struct {
	SessionID string    `json:"sessionId"`
	FirstItem *ItemView `json:"firstItem"`
	Theta     float64   `json:"theta"`
	SE        float64   `json:"se"`
	// 题池为空时测验立即结束
	TestComplete   bool    `json:"testComplete"`
	StoppingReason *string `json:"stoppingReason,omitempty"`
}

type SubmitAndAdvanceRequest struct {
	ItemID uint   `json:"itemId" binding:"required"`
	Answer string `json:"answer" binding:"required"`
}

type SubmitAndAdvanceResponse struct {
	NextItem           *ItemView                 `json:"nextItem,omitempty"`
	TestComplete       bool                      `json:"testComplete"`
	Theta              float64                   `json:"theta"`
	SE                 float64                   `json:"se"`
	ItemsAdministered  int                       `json:"itemsAdministered"`
	StoppingReason     *string                   `json:"stoppingReason,omitempty"`
	RawScore           *int                      `json:"rawScore,omitempty"`
	ConfidenceInterval *model.ConfidenceInterval `json:"confidenceInterval"`
}

// scoredResponse EAP 估计的输入：题目参数 + 对错
type scoredResponse struct {
	Item    *model.Item
	Correct bool
}

// 网格点数取整数常量，浮点步进除法会截断出不对称的网格
const (
	thetaGridMin    = -4.0
	thetaGridMax    = 4.0
	thetaGridPoints = 81
	thetaGridStep   = (thetaGridMax - thetaGridMin) / (thetaGridPoints - 1)
)

// estimateAbility EAP 能力估计。无作答时返回先验 (0, 1)。
func estimateAbility(responses []scoredResponse) (theta, se float64) {
	if len(responses) == 0 {
		return 0, 1
	}

	var sumW, sumWT float64
	weights := make([]float64, thetaGridPoints)
	grid := make([]float64, thetaGridPoints)

	for i := 0; i < thetaGridPoints; i++ {
		t := thetaGridMin + float64(i)*thetaGridStep
		grid[i] = t

		// 标准正态先验（省略常数因子）
		w := math.Exp(-t * t / 2)
		for _, r := range responses {
			p := twoPLProbability(t, r.Item)
			if r.Correct {
				w *= p
			} else {
				w *= 1 - p
			}
		}
		weights[i] = w
		sumW += w
		sumWT += w * t
	}

	if sumW == 0 {
		return 0, 1
	}

	theta = sumWT / sumW
	var sumVar float64
	for i := 0; i < thetaGridPoints; i++ {
		d := grid[i] - theta
		sumVar += weights[i] * d * d
	}
	se = math.Sqrt(sumVar / sumW)
	return theta, se
}

// stoppingReason 停止规则：SE 达到精度阈值或题量达到上限，先到先停。
// 两者同时满足时记 se_threshold。
func stoppingReason(se float64, itemsAdministered int, cfg *config.PsychometricsConfig) *string {
	if se <= cfg.SEThreshold {
		r := model.StopSEThreshold
		return &r
	}
	if itemsAdministered >= cfg.MaxItems {
		r := model.StopMaxItems
		return &r
	}
	return nil
}

// thetaToScore theta 映射到量表分（均值100、SD15），压入量表范围
func thetaToScore(theta float64, cfg *config.PsychometricsConfig) int {
	score := int(math.Round(cfg.ScoreMean + cfg.PopulationSD*theta))
	return clampScore(score, cfg.ScoreMin, cfg.ScoreMax)
}

// StartAdaptive 创建会话并选出第一题。题池为空时会话立即以
// pool_exhausted 结束。
func (s *AdaptiveService) StartAdaptive(userID uint) (*StartAdaptiveResponse, error) {
	sess := &model.TestSession{
		UserID: userID,
		Mode:   "adaptive",
		Status: model.SessionInProgress,
		Theta:  0,
		SE:     1,
	}
	if err := s.SessionRepo.Create(sess); err != nil {
		return nil, err
	}

	first, err := s.Selector.NextAdaptive(sess.Theta, nil)
	if err != nil {
		return nil, err
	}

	resp := &StartAdaptiveResponse{
		SessionID: sess.ID,
		Theta:     sess.Theta,
		SE:        sess.SE,
	}

	if first == nil {
		reason := model.StopPoolExhausted
		if err := s.completeSession(sess, reason); err != nil {
			return nil, err
		}
		resp.TestComplete = true
		resp.StoppingReason = &reason
		return resp, nil
	}

	if err := s.SessionRepo.SetCurrentItem(sess.ID, &first.ID); err != nil {
		return nil, err
	}
	resp.FirstItem = toItemView(first)
	return resp, nil
}

// ownedBy 会话归属校验。他人的会话按不存在处理，不泄露会话是否存在
func ownedBy(sess *model.TestSession, userID uint) error {
	if sess.UserID != userID {
		return util.ErrSessionNotFound
	}
	return nil
}

// SubmitAndAdvance 记录一次作答并推进状态机。更新是原子的：作答
// 记录写入失败时 theta 与 items_administered 均不前进；同一
// (session, item) 重复提交安全幂等。
func (s *AdaptiveService) SubmitAndAdvance(sessionID string, userID uint, req *SubmitAndAdvanceRequest) (*SubmitAndAdvanceResponse, error) {
	sess, err := s.SessionRepo.FindByID(sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	if err := ownedBy(sess, userID); err != nil {
		return nil, err
	}
	if sess.Status != model.SessionInProgress {
		return nil, util.ErrSessionNotInProgress
	}
	if sess.CurrentItemID == nil || *sess.CurrentItemID != req.ItemID {
		// 上一题的重试：已有作答记录则按幂等处理
		if _, ferr := s.ResponseRepo.FindBySessionAndItem(sessionID, req.ItemID); ferr != nil {
			return nil, util.ErrItemNotInSession
		}
		return s.currentStateResponse(sess)
	}

	item, err := s.ItemRepo.FindByID(req.ItemID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrItemNotFound
		}
		return nil, err
	}

	rec := &model.ResponseRecord{
		SessionID:     sessionID,
		ItemID:        item.ID,
		IsCorrect:     gradeAnswer(req.Answer, item.Answer),
		AbilityAtTime: sess.Theta,
		Position:      sess.ItemsAdministered + 1,
	}

	// 作答先落库；失败则整步失败，状态不前进
	if _, err := s.ResponseRepo.CreateIfAbsent(rec); err != nil {
		return nil, err
	}

	// 由全部已有作答重算能力估计
	responses, err := s.loadScoredResponses(sessionID)
	if err != nil {
		return nil, err
	}
	theta, se := estimateAbility(responses)

	applied, err := s.SessionRepo.AdvanceAbility(sessionID, sess.ItemsAdministered, theta, se, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		// 并发重试已推进状态，返回当前状态即可
		fresh, ferr := s.SessionRepo.FindByID(sessionID)
		if ferr != nil {
			return nil, ferr
		}
		return s.currentStateResponse(fresh)
	}

	sess.Theta = theta
	sess.SE = se
	sess.ItemsAdministered++

	resp := &SubmitAndAdvanceResponse{
		Theta:             theta,
		SE:                se,
		ItemsAdministered: sess.ItemsAdministered,
	}

	if reason := stoppingReason(se, sess.ItemsAdministered, &s.Cfg.Psychometrics); reason != nil {
		if err := s.completeSession(sess, *reason); err != nil {
			return nil, err
		}
		resp.TestComplete = true
		resp.StoppingReason = reason
		resp.RawScore = sess.RawScore
		resp.ConfidenceInterval = sessionInterval(sess)
		return resp, nil
	}

	administered := make([]uint, 0, len(responses))
	for _, r := range responses {
		administered = append(administered, r.Item.ID)
	}
	next, err := s.Selector.NextAdaptive(theta, administered)
	if err != nil {
		return nil, err
	}
	if next == nil {
		reason := model.StopPoolExhausted
		if err := s.completeSession(sess, reason); err != nil {
			return nil, err
		}
		resp.TestComplete = true
		resp.StoppingReason = &reason
		resp.RawScore = sess.RawScore
		resp.ConfidenceInterval = sessionInterval(sess)
		return resp, nil
	}

	if err := s.SessionRepo.SetCurrentItem(sessionID, &next.ID); err != nil {
		return nil, err
	}
	resp.NextItem = toItemView(next)
	return resp, nil
}

// Abandon 放弃会话。单向转移；进行中的 updating 步骤因条件更新
// 要么先完成要么整体失败，不会留下写了一半的能力状态。
func (s *AdaptiveService) Abandon(sessionID string, userID uint) error {
	sess, err := s.SessionRepo.FindByID(sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return util.ErrSessionNotFound
		}
		return err
	}
	if err := ownedBy(sess, userID); err != nil {
		return err
	}

	applied, err := s.SessionRepo.Abandon(sessionID)
	if err != nil {
		return err
	}
	if !applied {
		return util.ErrSessionAlreadyDone
	}
	return nil
}

func (s *AdaptiveService) GetSession(sessionID string, userID uint) (*model.TestSession, error) {
	sess, err := s.SessionRepo.FindByID(sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	if err := ownedBy(sess, userID); err != nil {
		return nil, err
	}
	return sess, nil
}

// completeSession 终止会话：算量表分，尽力附上置信区间（信度不可用
// 时保持为空），写入终态。
func (s *AdaptiveService) completeSession(sess *model.TestSession, reason string) error {
	score := thetaToScore(sess.Theta, &s.Cfg.Psychometrics)
	sess.RawScore = &score

	ci, err := s.Precision.ScoreEstimate(float64(score))
	if err != nil {
		// 区间算不出来不阻塞交卷，考生永远看不到统计内部错误
		logger.Log.Error("confidence interval computation failed",
			zap.String("sessionId", sess.ID), zap.Error(err))
	}
	if ci != nil {
		sess.SEM = &ci.SEM
		sess.CILower = &ci.Lower
		sess.CIUpper = &ci.Upper
		sess.ConfidenceLevel = &ci.ConfidenceLevel
	}

	applied, err := s.SessionRepo.Complete(sess, reason, time.Now())
	if err != nil {
		return err
	}
	if applied {
		sess.Status = model.SessionCompleted
		sess.TerminationReason = &reason
		monitoring.SessionsCompleted.WithLabelValues(reason).Inc()
	}
	return nil
}

// currentStateResponse 幂等重试路径：不改状态，按会话当前情况作答
func (s *AdaptiveService) currentStateResponse(sess *model.TestSession) (*SubmitAndAdvanceResponse, error) {
	resp := &SubmitAndAdvanceResponse{
		Theta:              sess.Theta,
		SE:                 sess.SE,
		ItemsAdministered:  sess.ItemsAdministered,
		StoppingReason:     sess.TerminationReason,
		RawScore:           sess.RawScore,
		ConfidenceInterval: sessionInterval(sess),
	}
	if sess.Status != model.SessionInProgress {
		resp.TestComplete = true
		return resp, nil
	}
	if sess.CurrentItemID != nil {
		item, err := s.ItemRepo.FindByID(*sess.CurrentItemID)
		if err == nil {
			resp.NextItem = toItemView(item)
		}
	}
	return resp, nil
}

func (s *AdaptiveService) loadScoredResponses(sessionID string) ([]scoredResponse, error) {
	recs, err := s.ResponseRepo.AllForSession(sessionID)
	if err != nil {
		return nil, err
	}

	responses := make([]scoredResponse, 0, len(recs))
	for _, rec := range recs {
		item, err := s.ItemRepo.FindByID(rec.ItemID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, scoredResponse{Item: item, Correct: rec.IsCorrect})
	}
	return responses, nil
}

func sessionInterval(sess *model.TestSession) *model.ConfidenceInterval {
	if sess.CILower == nil || sess.CIUpper == nil || sess.SEM == nil || sess.ConfidenceLevel == nil {
		return nil
	}
	return &model.ConfidenceInterval{
		Lower:           *sess.CILower,
		Upper:           *sess.CIUpper,
		ConfidenceLevel: *sess.ConfidenceLevel,
		SEM:             *sess.SEM,
	}
}

// gradeAnswer 判分：答案比较忽略大小写与首尾空白
func gradeAnswer(given, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(expected))
}
