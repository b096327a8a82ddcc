package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpzouying/tiktok-shop-mcp/automation"
	"github.com/xpzouying/tiktok-shop-mcp/configs"
	"github.com/xpzouying/tiktok-shop-mcp/linkopener"
	"github.com/xpzouying/tiktok-shop-mcp/store"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testEnv struct {
	dir     string
	service *CollectService
	router  *gin.Engine
	app     *AppServer
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newTestEnv(t *testing.T, run automation.RunFunc, options ...ServiceOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	options = append([]ServiceOption{
		WithDirs(filepath.Join(dir, "uploads"), filepath.Join(dir, "shared_links")),
		WithRunFunc(run),
	}, options...)
	service := NewCollectService(filepath.Join(dir, "config.yaml"), options...)
	t.Cleanup(service.exec.Close)

	app := NewAppServer(service)
	return &testEnv{
		dir:     dir,
		service: service,
		router:  setupRoutes(app),
		app:     app,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (int, apiResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func (e *testEnv) upload(t *testing.T, name string, data []byte) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.serve(t, req)
}

// blockingRun 在 release 关闭前一直处于运行中
func blockingRun(release <-chan struct{}, links ...string) automation.RunFunc {
	return func(ctx context.Context, opts automation.RunOptions) (*automation.RunResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &automation.RunResult{Links: links}, nil
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	code, resp := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	data := decode[map[string]any](t, resp.Data)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, false, data["running"])
}

func TestConfigHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	code, resp := env.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, code)
	cfg := decode[configs.Config](t, resp.Data)
	assert.Equal(t, configs.DefaultMaxProducts, cfg.Task.MaxProductsToProcess)

	t.Run("微信模式缺少联系人", func(t *testing.T) {
		code, resp := env.do(t, http.MethodPost, "/api/config/task", map[string]any{
			"max_products_to_process": 5,
			"share_target":            "wechat",
		})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "CONFIG_SAVE_FAILED", resp.Code)
	})

	t.Run("数量必须为正", func(t *testing.T) {
		code, resp := env.do(t, http.MethodPost, "/api/config/task", map[string]any{
			"max_products_to_process": 0,
		})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "INVALID_REQUEST", resp.Code)
	})

	t.Run("非法的定时表达式", func(t *testing.T) {
		code, _ := env.do(t, http.MethodPost, "/api/config/task", map[string]any{
			"max_products_to_process": 5,
			"schedule":                "every day",
		})
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("保存任务配置", func(t *testing.T) {
		code, _ := env.do(t, http.MethodPost, "/api/config/task", map[string]any{
			"max_products_to_process": 5,
			"share_target":            "wechat",
			"contact_name":            "文件传输助手",
			"schedule":                "0 0 9 * * *",
		})
		require.Equal(t, http.StatusOK, code)

		cfg, err := env.service.LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Task.MaxProductsToProcess)
		assert.Equal(t, "wechat", cfg.Task.ShareTarget)
		assert.Equal(t, "文件传输助手", cfg.Task.ContactName)
		assert.Equal(t, "0 0 9 * * *", cfg.Task.Schedule)
		assert.Equal(t, configs.DefaultSlotStart, cfg.Task.SlotStart)
	})

	t.Run("空密码保留原值", func(t *testing.T) {
		code, _ := env.do(t, http.MethodPost, "/api/config/web", map[string]any{
			"miaoshou_username": "13800000000",
			"miaoshou_password": "secret",
		})
		require.Equal(t, http.StatusOK, code)

		code, resp := env.do(t, http.MethodPost, "/api/config/web", map[string]any{
			"miaoshou_username": "13900000000",
			"collect_mode":      "collect",
		})
		require.Equal(t, http.StatusOK, code)
		assert.NotContains(t, string(resp.Data), "secret")

		cfg, err := env.service.LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "13900000000", cfg.WebAutomation.MiaoshouUsername)
		assert.Equal(t, "secret", cfg.WebAutomation.MiaoshouPassword)
		assert.Equal(t, "collect", cfg.WebAutomation.CollectMode)
	})

	t.Run("采集模式非法", func(t *testing.T) {
		code, _ := env.do(t, http.MethodPost, "/api/config/web", map[string]any{"collect_mode": "auto"})
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("保存设备配置", func(t *testing.T) {
		code, _ := env.do(t, http.MethodPost, "/api/config/mobile", map[string]any{
			"platform_version": "14",
			"device_name":      "emulator-5554",
		})
		require.Equal(t, http.StatusOK, code)

		cfg, err := env.service.LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "emulator-5554", cfg.Device.DeviceName)
		assert.Equal(t, configs.DefaultTikTokPackage, cfg.TikTok.AppPackage)
	})
}

func TestSaveConfigKeepsEnvSecretsOutOfFile(t *testing.T) {
	t.Setenv("MIAOSHOU_USERNAME", "13700000000")
	t.Setenv("MIAOSHOU_PASSWORD", "s3cret-from-env")
	t.Setenv("APPIUM_SERVER_URL", "http://10.0.0.9:4723")
	env := newTestEnv(t, nil)

	_, err := env.service.SaveMobileConfig(&MobileConfigRequest{DeviceName: "emulator-5554"})
	require.NoError(t, err)

	data, err := os.ReadFile(env.service.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "emulator-5554")
	assert.NotContains(t, string(data), "s3cret-from-env")
	assert.NotContains(t, string(data), "13700000000")
	assert.NotContains(t, string(data), "10.0.0.9")

	// 运行时读取仍然能拿到环境变量中的值
	cfg, err := env.service.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret-from-env", cfg.WebAutomation.MiaoshouPassword)
	assert.Equal(t, "emulator-5554", cfg.Device.DeviceName)
}

func TestImageHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	code, resp := env.do(t, http.MethodGet, "/api/images", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]string](t, resp.Data))

	code, resp = env.upload(t, "shoe.png", pngHeader)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "shoe.png", decode[map[string]string](t, resp.Data)["filename"])

	code, resp = env.upload(t, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "UPLOAD_FAILED", resp.Code)

	// 非图片文件即使放进目录也不会被列出
	require.NoError(t, os.WriteFile(filepath.Join(env.service.uploadDir, "readme.md"), []byte("# x"), 0o644))

	code, resp = env.do(t, http.MethodGet, "/api/images", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"shoe.png"}, decode[[]string](t, resp.Data))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/shoe.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngHeader, w.Body.Bytes())

	code, _ = env.do(t, http.MethodGet, "/uploads/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, code)

	_, err := env.service.ImagePath("../config.yaml")
	assert.ErrorIs(t, err, linkopener.ErrInvalidName)
}

func TestRunHandlers(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, blockingRun(release, "https://shop/1", "https://shop/2"))

	code, resp := env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, automation.StatusIdle, decode[automation.Snapshot](t, resp.Data).Status)

	code, resp = env.do(t, http.MethodPost, "/api/run", nil)
	require.Equal(t, http.StatusOK, code)
	started := decode[StartRunResponse](t, resp.Data)
	assert.NotEmpty(t, started.RunID)

	code, resp = env.do(t, http.MethodPost, "/api/run", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "RUN_IN_PROGRESS", resp.Code)

	code, resp = env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, code)
	snap := decode[automation.Snapshot](t, resp.Data)
	assert.Equal(t, automation.StatusRunning, snap.Status)
	assert.Equal(t, started.RunID, snap.ID)

	close(release)
	assert.Eventually(t, func() bool { return !env.service.exec.Running() }, 5*time.Second, 10*time.Millisecond)

	code, resp = env.do(t, http.MethodGet, "/api/results", nil)
	require.Equal(t, http.StatusOK, code)
	results := decode[struct {
		Status  automation.Status `json:"status"`
		Results []string          `json:"results"`
	}](t, resp.Data)
	assert.Equal(t, automation.StatusCompleted, results.Status)
	assert.Equal(t, []string{"https://shop/1", "https://shop/2"}, results.Results)
}

func TestStartRun_Image(t *testing.T) {
	var mu sync.Mutex
	var got automation.RunOptions
	env := newTestEnv(t, func(ctx context.Context, opts automation.RunOptions) (*automation.RunResult, error) {
		mu.Lock()
		got = opts
		mu.Unlock()
		return &automation.RunResult{}, nil
	})

	code, resp := env.do(t, http.MethodPost, "/api/run", map[string]any{"pc_image_path": "missing.png"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_IMAGE", resp.Code)

	code, _ = env.upload(t, "shoe.png", pngHeader)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/api/run", map[string]any{"pc_image_path": "shoe.png", "max_links": 3})
	require.Equal(t, http.StatusOK, code)
	assert.Eventually(t, func() bool { return !env.service.exec.Running() }, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, filepath.IsAbs(got.PCImagePath))
	assert.Equal(t, "shoe.png", filepath.Base(got.PCImagePath))
	assert.Equal(t, 3, got.MaxLinks)
}

func TestListRuns(t *testing.T) {
	t.Run("没有数据库时返回空列表", func(t *testing.T) {
		env := newTestEnv(t, nil)
		code, resp := env.do(t, http.MethodGet, "/api/runs", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Empty(t, decode[RunsResponse](t, resp.Data).Runs)
	})

	t.Run("记录任务历史", func(t *testing.T) {
		st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })

		env := newTestEnv(t, func(ctx context.Context, opts automation.RunOptions) (*automation.RunResult, error) {
			return &automation.RunResult{Links: []string{"https://shop/9"}, LinkFile: "links-20240501120000.txt"}, nil
		}, WithStore(st))

		code, resp := env.do(t, http.MethodPost, "/api/run", nil)
		require.Equal(t, http.StatusOK, code)
		runID := decode[StartRunResponse](t, resp.Data).RunID

		var runs []store.Record
		assert.Eventually(t, func() bool {
			code, resp := env.do(t, http.MethodGet, "/api/runs?limit=5", nil)
			if code != http.StatusOK {
				return false
			}
			runs = decode[RunsResponse](t, resp.Data).Runs
			return len(runs) == 1 && runs[0].Status == string(automation.StatusCompleted)
		}, 5*time.Second, 20*time.Millisecond)

		assert.Equal(t, runID, runs[0].ID)
		assert.Equal(t, []string{"https://shop/9"}, runs[0].Links)
		assert.Equal(t, "links-20240501120000.txt", runs[0].LinkFile)
	})
}

func TestLinkFileHandlers(t *testing.T) {
	env := newTestEnv(t, nil)

	code, resp := env.do(t, http.MethodGet, "/api/link_files", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]string](t, resp.Data))

	require.NoError(t, os.MkdirAll(env.service.linksDir, 0o755))
	for _, name := range []string{"links-20240501120000.txt", "links-20240502120000.txt", "other.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(env.service.linksDir, name), []byte("https://shop/1\n"), 0o644))
	}

	code, resp = env.do(t, http.MethodGet, "/api/link_files", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"links-20240502120000.txt", "links-20240501120000.txt"}, decode[[]string](t, resp.Data))

	var opened []string
	var openErr error
	env.service.openLinks = func(ctx context.Context, web configs.WebAutomationConfig, name string) error {
		opened = append(opened, name)
		return openErr
	}

	code, _ = env.do(t, http.MethodPost, "/api/open_links", map[string]any{"filename": "links-20240501120000.txt"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"links-20240501120000.txt"}, opened)

	code, resp = env.do(t, http.MethodPost, "/api/open_links", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", resp.Code)

	openErr = linkopener.ErrBrowserBusy
	code, resp = env.do(t, http.MethodPost, "/api/open_links", map[string]any{"filename": "links-20240501120000.txt"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "BROWSER_BUSY", resp.Code)

	openErr = linkopener.ErrFileNotFound
	code, resp = env.do(t, http.MethodPost, "/api/open_links", map[string]any{"filename": "links-1.txt"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_FILE", resp.Code)
}
