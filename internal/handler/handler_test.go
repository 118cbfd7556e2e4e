package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThomasAlban/figured-bass/internal/config"
	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 这些测试只覆盖不需要数据库、消息队列和 redis 的路径
func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Expiration = 1
	cfg.Optimizer.TotalGenerations = 100
	cfg.Optimizer.PopulationSize = 30
	cfg.Optimizer.NonMutatedFraction = 0.1
	cfg.Optimizer.MutateThriceFraction = 0.2
	cfg.Optimizer.MutateTwiceFraction = 0.1
	cfg.Optimizer.MaxPreviewGenerations = 5

	h, err := NewHandler(cfg, nil, nil, nil)
	require.NoError(t, err)
	h.RegisterRoutes()
	return h
}

type testResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h *Handler, req *http.Request) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

const exerciseBody = `{
	"title": "E 小调练习",
	"key": {"tonic": "G", "tonality": "major"},
	"bassLine": [
		{"bass": "E3", "figures": ["5", "3"]},
		{"bass": "F#3", "figures": ["6#", "3"]},
		{"bass": "G3", "figures": ["6", "3"]},
		{"bass": "D#3", "figures": ["6", "3"]},
		{"bass": "E3"}
	],
	"parameters": {"populationSize": 20, "seed": 11}
}`

func TestPreviewHarmonization(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/harmonizations/preview", strings.NewReader(exerciseBody))
	rec, resp := do(t, h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success, resp.Message)

	var data previewResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 5, data.Generations, "预览的代数不能超过配置中的上限")
	require.NotNil(t, data.Realisation)
	require.Len(t, data.Realisation.Chords, 5)
	assert.Equal(t, "E3", data.Realisation.Chords[0].B.String())
	assert.Equal(t, "D#3", data.Realisation.Chords[3].B.String())
	assert.Len(t, strings.Split(strings.TrimRight(data.Rendered, "\n"), "\n"), 4)
}

func TestPreviewHarmonizationRejectsInvalidInput(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"空请求体", ``, "请求体不能为空"},
		{"非法 JSON", `{"title":`, "请求体不是合法的 JSON"},
		{"未知字段", `{"title": "x", "foo": 1}`, ""},
		{"缺少标题", `{"key": {"tonic": "C", "tonality": "major"}, "bassLine": [{"bass": "C3"}]}`, ""},
		{"未知调号", `{"title": "x", "key": {"tonic": "D#", "tonality": "major"}, "bassLine": [{"bass": "C3"}]}`, "不支持的调号 D# major"},
		{"低音格式错误", `{"title": "x", "key": {"tonic": "C", "tonality": "major"}, "bassLine": [{"bass": "C3"}, {"bass": "Q3"}]}`, `第 2 个低音 "Q3" 格式错误`},
		{"参数不合法", `{"title": "x", "key": {"tonic": "C", "tonality": "major"}, "bassLine": [{"bass": "C3"}], "parameters": {"nonMutatedFraction": 0.5, "mutateThriceFraction": 0.5}}`, ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/harmonizations/preview", strings.NewReader(tt.body))
		rec, resp := do(t, h, req)

		assert.Equal(t, http.StatusOK, rec.Code, tt.name)
		assert.False(t, resp.Success, tt.name)
		assert.NotEmpty(t, resp.Message, tt.name)
		if tt.message != "" {
			assert.Equal(t, tt.message, resp.Message, tt.name)
		}
	}
}

// 配置中的默认比例来自环境变量，NaN 也要在运行前被拒绝
func TestPreviewHarmonizationRejectsNaNDefault(t *testing.T) {
	h := newTestHandler(t)
	h.config.Optimizer.NonMutatedFraction = math.NaN()

	body := `{"title": "x", "key": {"tonic": "C", "tonality": "major"}, "bassLine": [{"bass": "C3"}, {"bass": "G2"}]}`
	req := httptest.NewRequest(http.MethodPost, "/harmonizations/preview", strings.NewReader(body))
	_, resp := do(t, h, req)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "保留比例")
}

func TestCreateHarmonizationValidatesBeforeStoring(t *testing.T) {
	h := newTestHandler(t)

	body := `{"title": "x", "key": {"tonic": "C", "tonality": "major"}, "bassLine": [{"bass": "C3"}], "notifyEmail": "not-an-email"}`
	req := httptest.NewRequest(http.MethodPost, "/harmonizations", strings.NewReader(body))
	_, resp := do(t, h, req)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "NotifyEmail")
}

func TestLoginRequiresCredentials(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username": "admin"}`))
	_, resp := do(t, h, req)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Password")
}

func TestLogoutClearsCookie(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec, resp := do(t, h, req)

	assert.True(t, resp.Success)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
}

func TestDeleteHarmonizationRequiresLogin(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/harmonizations/1", nil)
	_, resp := do(t, h, req)
	assert.False(t, resp.Success)
	assert.Equal(t, "用户未登录", resp.Message)

	req = httptest.NewRequest(http.MethodDelete, "/harmonizations/1", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "garbage"})
	_, resp = do(t, h, req)
	assert.Equal(t, "无效的令牌", resp.Message)
}

func TestDeleteHarmonizationRequiresAdmin(t *testing.T) {
	h := newTestHandler(t)

	ss, _, err := h.signSession(&domain.User{ID: 2, Role: "访客"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/harmonizations/1", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: ss})
	_, resp := do(t, h, req)
	assert.False(t, resp.Success)
	assert.Equal(t, "权限不足", resp.Message)
}

func TestSessionRoundTrip(t *testing.T) {
	h := newTestHandler(t)

	ss, expiration, err := h.signSession(&domain.User{ID: 7, Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiration, time.Minute)

	claims, err := h.parseSession(ss)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RoleAdmin), claims.Role)
	assert.Equal(t, "7", claims.Subject)

	// 换了密钥之后旧令牌失效
	other := newTestHandler(t)
	other.config.JWT.Secret = "another-secret"
	_, err = other.parseSession(ss)
	assert.Error(t, err)

	// 不接受 none 签名
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = h.parseSession(unsigned)
	assert.Error(t, err)
}

func TestSessionCookie(t *testing.T) {
	h := newTestHandler(t)

	cookie := h.sessionCookie("token", time.Now().Add(time.Hour))
	assert.Equal(t, sessionCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Zero(t, cookie.MaxAge)

	h.config.Environment = "production"
	cookie = h.sessionCookie("token", time.Now().Add(time.Hour))
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	cleared := h.sessionCookie("", time.Unix(0, 0))
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestResolveParameters(t *testing.T) {
	h := newTestHandler(t)

	p := h.resolveParameters(nil)
	assert.Equal(t, domain.OptimizerParameters{
		TotalGenerations:     100,
		PopulationSize:       30,
		NonMutatedFraction:   0.1,
		MutateThriceFraction: 0.2,
		MutateTwiceFraction:  0.1,
	}, p)

	zero := 0.0
	seed := uint64(9)
	p = h.resolveParameters(&parametersRequest{NonMutatedFraction: &zero, Seed: &seed})
	assert.Equal(t, 0.0, p.NonMutatedFraction, "显式给出的 0 不能被默认值覆盖")
	assert.Equal(t, uint64(9), p.Seed)
	assert.Equal(t, 30, p.PopulationSize)
}
