package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/automation"
	"github.com/xpzouying/tiktok-shop-mcp/linkopener"
)

// 上传图片大小上限
const maxUploadSize = 20 << 20

func respondError(c *gin.Context, statusCode int, code, message string, details any) {
	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	logrus.Errorf("%s %s %d: %s", c.Request.Method, c.Request.URL.Path, statusCode, message)
	c.JSON(statusCode, response)
}

func respondSuccess(c *gin.Context, data any, message string) {
	response := SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	}

	logrus.Debugf("%s %s %d", c.Request.Method, c.Request.URL.Path, http.StatusOK)
	c.JSON(http.StatusOK, response)
}

func (s *AppServer) healthHandler(c *gin.Context) {
	respondSuccess(c, map[string]any{
		"status":  "healthy",
		"service": "tiktok-shop-mcp",
		"running": s.service.exec.Running(),
	}, "服务正常")
}

func (s *AppServer) getConfigHandler(c *gin.Context) {
	cfg, err := s.service.LoadConfig()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "CONFIG_LOAD_FAILED", "读取配置失败", err.Error())
		return
	}
	respondSuccess(c, cfg, "")
}

func (s *AppServer) saveTaskConfigHandler(c *gin.Context) {
	var req TaskConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	cfg, err := s.service.SaveTaskConfig(&req)
	if err != nil {
		respondError(c, http.StatusBadRequest, "CONFIG_SAVE_FAILED", "保存任务配置失败", err.Error())
		return
	}
	respondSuccess(c, cfg.Task, "APP自动化任务已保存")
}

func (s *AppServer) saveWebConfigHandler(c *gin.Context) {
	var req WebConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	cfg, err := s.service.SaveWebConfig(&req)
	if err != nil {
		respondError(c, http.StatusBadRequest, "CONFIG_SAVE_FAILED", "保存Web配置失败", err.Error())
		return
	}
	respondSuccess(c, cfg.WebAutomation, "Web自动化配置已保存")
}

func (s *AppServer) saveMobileConfigHandler(c *gin.Context) {
	var req MobileConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	cfg, err := s.service.SaveMobileConfig(&req)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "CONFIG_SAVE_FAILED", "保存APP配置失败", err.Error())
		return
	}
	respondSuccess(c, map[string]any{"device": cfg.Device, "tiktok": cfg.TikTok}, "APP自动化配置已保存")
}

func (s *AppServer) listImagesHandler(c *gin.Context) {
	images, err := s.service.ListImages()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "LIST_IMAGES_FAILED", "无法读取图片目录", err.Error())
		return
	}
	respondSuccess(c, images, "")
}

func (s *AppServer) uploadImageHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "缺少上传文件", err.Error())
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "读取上传文件失败", err.Error())
		return
	}
	defer f.Close()

	name, err := s.service.SaveImage(fh.Filename, f)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidImage) {
			status = http.StatusBadRequest
		}
		respondError(c, status, "UPLOAD_FAILED", "上传图片失败", err.Error())
		return
	}
	respondSuccess(c, map[string]string{"filename": name}, "图片上传成功")
}

func (s *AppServer) serveUploadHandler(c *gin.Context) {
	path, err := s.service.ImagePath(c.Param("filename"))
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "图片不存在", err.Error())
		return
	}
	c.File(path)
}

func (s *AppServer) startRunHandler(c *gin.Context) {
	var req StartRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
			return
		}
	}

	resp, err := s.service.StartRun(&req)
	switch {
	case err == nil:
	case errors.Is(err, automation.ErrRunInProgress):
		respondError(c, http.StatusConflict, "RUN_IN_PROGRESS", "已有任务正在运行", err.Error())
		return
	case errors.Is(err, ErrNotFound), errors.Is(err, linkopener.ErrInvalidName):
		respondError(c, http.StatusBadRequest, "INVALID_IMAGE", "图片不存在", err.Error())
		return
	default:
		respondError(c, http.StatusInternalServerError, "RUN_FAILED", "启动任务失败", err.Error())
		return
	}
	respondSuccess(c, resp, "采集任务已在后台启动")
}

func (s *AppServer) statusHandler(c *gin.Context) {
	respondSuccess(c, s.service.Status(), "")
}

func (s *AppServer) resultsHandler(c *gin.Context) {
	snap := s.service.Status()
	respondSuccess(c, map[string]any{
		"status":  snap.Status,
		"results": snap.Results,
	}, "")
}

func (s *AppServer) listRunsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := s.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "LIST_RUNS_FAILED", "读取任务历史失败", err.Error())
		return
	}
	respondSuccess(c, RunsResponse{Runs: runs}, "")
}

func (s *AppServer) listLinkFilesHandler(c *gin.Context) {
	files, err := s.service.ListLinkFiles()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "LIST_FILES_FAILED", "无法读取链接目录", err.Error())
		return
	}
	respondSuccess(c, files, "")
}

func (s *AppServer) openLinksHandler(c *gin.Context) {
	var req OpenLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "缺少文件名", nil)
		return
	}

	err := s.service.OpenLinks(c.Request.Context(), req.Filename)
	switch {
	case err == nil:
	case errors.Is(err, linkopener.ErrBrowserBusy):
		respondError(c, http.StatusConflict, "BROWSER_BUSY", "浏览器正在使用中", err.Error())
		return
	case errors.Is(err, linkopener.ErrInvalidName),
		errors.Is(err, linkopener.ErrFileNotFound),
		errors.Is(err, linkopener.ErrNoLinks):
		respondError(c, http.StatusBadRequest, "INVALID_FILE", "链接文件无效", err.Error())
		return
	default:
		respondError(c, http.StatusInternalServerError, "OPEN_LINKS_FAILED", "打开链接失败", err.Error())
		return
	}
	respondSuccess(c, map[string]string{"filename": req.Filename}, "正在后台打开文件 '"+req.Filename+"' 中的链接...")
}

func (s *AppServer) erpLoginStatusHandler(c *gin.Context) {
	status, err := s.service.CheckERPLogin(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STATUS_CHECK_FAILED", "检查登录状态失败", err.Error())
		return
	}
	respondSuccess(c, status, "检查登录状态成功")
}
