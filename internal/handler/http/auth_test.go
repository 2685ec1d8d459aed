package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository/mocks"
	"github.com/weixueshi04/TimeScheduleApp/internal/service"
)

func TestAuthHandler_GetStats(t *testing.T) {
	// 初始化测试环境
	gin.SetMode(gin.TestMode)
	users := new(mocks.UserRepository)
	handler := NewAuthHandler(service.NewAuthService(users, "test-secret"))

	users.On("FindByID", mock.Anything, uint(7)).Return(&domain.User{
		ID:                  7,
		Username:            "alice",
		TotalCompletedTasks: 8,
		TotalStudySessions:  10,
		TotalFocusHours:     42,
	}, nil).Once()

	// 模拟 Gin 上下文，user_id 由认证中间件写入
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/auth/stats", nil)
	c.Set("user_id", uint(7))

	handler.GetStats(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(8), body["total_completed_tasks"])
	assert.Equal(t, float64(10), body["total_study_sessions"])
	assert.Equal(t, float64(42), body["total_focus_hours"])
	assert.Equal(t, float64(80), body["completion_rate"])
	users.AssertExpectations(t)
}

func TestAuthHandler_GetStats_Unauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	users := new(mocks.UserRepository)
	handler := NewAuthHandler(service.NewAuthService(users, "test-secret"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/auth/stats", nil)

	handler.GetStats(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	users.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}
