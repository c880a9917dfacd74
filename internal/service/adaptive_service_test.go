package service

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/model"
	"cognitest_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abilityItem(id uint, difficulty float64) *model.Item {
	item := &model.Item{Difficulty: difficulty, Discrimination: f64(0.5)}
	item.ID = id
	return item
}

func TestEstimateAbilityPriorOnly(t *testing.T) {
	// 无作答时返回先验
	theta, se := estimateAbility(nil)
	assert.Equal(t, 0.0, theta)
	assert.Equal(t, 1.0, se)
}

func TestEstimateAbilityMovesWithResponses(t *testing.T) {
	correct := []scoredResponse{
		{Item: abilityItem(1, 0), Correct: true},
		{Item: abilityItem(2, 0.5), Correct: true},
		{Item: abilityItem(3, 1.0), Correct: true},
	}
	thetaUp, seUp := estimateAbility(correct)
	assert.Greater(t, thetaUp, 0.0)
	assert.Less(t, seUp, 1.0)

	wrong := []scoredResponse{
		{Item: abilityItem(1, 0), Correct: false},
		{Item: abilityItem(2, -0.5), Correct: false},
		{Item: abilityItem(3, -1.0), Correct: false},
	}
	thetaDown, _ := estimateAbility(wrong)
	assert.Less(t, thetaDown, 0.0)
}

func TestEstimateAbilityStaysFiniteOnPerfectRecord(t *testing.T) {
	// 全对不发散，EAP 被先验拉回网格内
	var responses []scoredResponse
	for i := 0; i < 20; i++ {
		responses = append(responses, scoredResponse{Item: abilityItem(uint(i+1), 0), Correct: true})
	}
	theta, se := estimateAbility(responses)
	assert.Greater(t, theta, 0.0)
	assert.Less(t, theta, 4.0)
	assert.Greater(t, se, 0.0)
}

func TestEstimateAbilityGridIsSymmetric(t *testing.T) {
	// 同一题一对一错，似然关于0对称，后验均值应严格回到0；
	// 网格端点不对称时这里会出现系统性偏移
	responses := []scoredResponse{
		{Item: abilityItem(1, 0), Correct: true},
		{Item: abilityItem(2, 0), Correct: false},
	}
	theta, se := estimateAbility(responses)
	assert.InDelta(t, 0.0, theta, 1e-9)
	assert.Greater(t, se, 0.0)
}

func TestEstimateAbilitySEDecreasesWithMoreItems(t *testing.T) {
	few := []scoredResponse{
		{Item: abilityItem(1, 0), Correct: true},
		{Item: abilityItem(2, 0), Correct: false},
	}
	_, seFew := estimateAbility(few)

	many := append([]scoredResponse{}, few...)
	for i := 3; i <= 12; i++ {
		many = append(many, scoredResponse{Item: abilityItem(uint(i), 0), Correct: i%2 == 0})
	}
	_, seMany := estimateAbility(many)

	assert.Less(t, seMany, seFew)
}

func adaptiveTestPsychometrics() *config.PsychometricsConfig {
	return &config.PsychometricsConfig{
		SEThreshold:  0.30,
		MaxItems:     20,
		ScoreMean:    100,
		PopulationSD: 15,
		ScoreMin:     40,
		ScoreMax:     160,
	}
}

func TestStoppingReasonPrecision(t *testing.T) {
	cfg := adaptiveTestPsychometrics()

	reason := stoppingReason(0.25, 5, cfg)
	require.NotNil(t, reason)
	assert.Equal(t, model.StopSEThreshold, *reason)

	// 恰好等于阈值也停止
	reason = stoppingReason(0.30, 5, cfg)
	require.NotNil(t, reason)
	assert.Equal(t, model.StopSEThreshold, *reason)
}

func TestStoppingReasonMaxItems(t *testing.T) {
	cfg := adaptiveTestPsychometrics()

	reason := stoppingReason(0.80, 20, cfg)
	require.NotNil(t, reason)
	assert.Equal(t, model.StopMaxItems, *reason)
}

func TestStoppingReasonPrecisionWinsWhenBothHold(t *testing.T) {
	cfg := adaptiveTestPsychometrics()

	// 两个条件同时满足时记 se_threshold
	reason := stoppingReason(0.20, 20, cfg)
	require.NotNil(t, reason)
	assert.Equal(t, model.StopSEThreshold, *reason)
}

func TestStoppingReasonNoneYet(t *testing.T) {
	cfg := adaptiveTestPsychometrics()
	assert.Nil(t, stoppingReason(0.50, 10, cfg))
}

func TestThetaToScore(t *testing.T) {
	cfg := adaptiveTestPsychometrics()

	assert.Equal(t, 100, thetaToScore(0, cfg))
	assert.Equal(t, 115, thetaToScore(1, cfg))
	assert.Equal(t, 85, thetaToScore(-1, cfg))
	// 超出量表范围压到边界
	assert.Equal(t, 160, thetaToScore(5, cfg))
	assert.Equal(t, 40, thetaToScore(-5, cfg))
}

func TestGradeAnswer(t *testing.T) {
	assert.True(t, gradeAnswer("B", "B"))
	assert.True(t, gradeAnswer(" b ", "B"))
	assert.False(t, gradeAnswer("A", "B"))
	assert.False(t, gradeAnswer("", "B"))
}

func TestItemViewOmitsAnswer(t *testing.T) {
	item := &model.Item{
		Content:        "2 + 2 = ?",
		Answer:         "4",
		ItemType:       "numeric",
		DifficultyTier: model.TierEasy,
	}
	item.ID = 9

	view := toItemView(item)
	require.NotNil(t, view)
	assert.Equal(t, uint(9), view.ID)
	assert.Equal(t, "2 + 2 = ?", view.Content)
	assert.Equal(t, "numeric", view.ItemType)
	assert.Equal(t, "easy", view.DifficultyTier)

	assert.Nil(t, toItemView(nil))
}

func TestSessionOwnershipHidesForeignSessions(t *testing.T) {
	sess := &model.TestSession{UserID: 7}

	assert.NoError(t, ownedBy(sess, 7))
	// 他人会话按不存在处理，提交、放弃、查询共用这条判定
	assert.ErrorIs(t, ownedBy(sess, 8), util.ErrSessionNotFound)
}

func TestSessionInterval(t *testing.T) {
	sess := &model.TestSession{}
	assert.Nil(t, sessionInterval(sess))

	lower, upper := 91, 109
	sem, level := 4.5, 0.95
	sess.CILower = &lower
	sess.CIUpper = &upper
	sess.SEM = &sem
	sess.ConfidenceLevel = &level

	ci := sessionInterval(sess)
	require.NotNil(t, ci)
	assert.Equal(t, 91, ci.Lower)
	assert.Equal(t, 109, ci.Upper)
	assert.Equal(t, 4.5, ci.SEM)
}
