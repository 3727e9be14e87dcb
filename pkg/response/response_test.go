package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccessAndError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, gin.H{"id": 1})
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.NotNil(t, resp.Data)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	BusinessError(c, CodeBidTooLow, "出价必须高于当前价格")
	assert.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, CodeBidTooLow, resp.Code)
	assert.Nil(t, resp.Data)
}
