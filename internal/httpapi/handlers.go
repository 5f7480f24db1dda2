package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/QingMing-Bot/scriptrunner/internal/domain"
	"github.com/QingMing-Bot/scriptrunner/internal/service"
	"github.com/QingMing-Bot/scriptrunner/pkg/importexport"
)

type runRequest struct {
	ServerIDs []int64              `json:"server_ids"`
	Commands  []domain.CommandSpec `json:"commands"`
	Timeout   int                  `json:"timeout"`
	Parallel  int                  `json:"parallel"`
}

// RunHandler POST /api/run 批量下发，按请求顺序返回逐台结果
func (a *API) RunHandler(c *gin.Context) {
	var req runRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	results, err := a.svc.Dispatch(domain.DispatchTask{
		ServerIDs: req.ServerIDs,
		Commands:  req.Commands,
		Timeout:   req.Timeout,
		Parallel:  req.Parallel,
	})
	if err != nil {
		if errors.Is(err, service.ErrNoServers) || errors.Is(err, service.ErrNoCommands) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing server_ids or commands"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

// RunsHandler GET /api/runs?limit=N[&server_id=] 最近执行记录，时间倒序
func (a *API) RunsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var (
		list []domain.RunRecord
		err  error
	)
	if sid := c.Query("server_id"); sid != "" {
		id, perr := strconv.ParseInt(sid, 10, 64)
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server_id"})
			return
		}
		list, err = a.runs.ListByServer(id, limit)
	} else {
		list, err = a.runs.ListRecent(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []domain.RunRecord{}
	}
	c.JSON(http.StatusOK, list)
}

// ListServersHandler GET /api/servers/list?tag= 服务器列表（不含任何凭据）
func (a *API) ListServersHandler(c *gin.Context) {
	list, err := a.repo.ListByTag(c.Query("tag"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []domain.Server{}
	}
	c.JSON(http.StatusOK, list)
}

type addServerRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host" binding:"required"`
	Username string `json:"username"`
	Password string `json:"password"`
	KeyFile  string `json:"keyfile_path"`
	OS       string `json:"os"`
	Tags     string `json:"tags"`
}

// AddServerHandler POST /api/servers/add 注册或更新（host 唯一）
func (a *API) AddServerHandler(c *gin.Context) {
	var req addServerRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	s := domain.Server{
		Name:     req.Name,
		Host:     req.Host,
		Username: req.Username,
		Password: req.Password,
		KeyFile:  req.KeyFile,
		OS:       req.OS,
		Tags:     req.Tags,
	}
	if err := a.repo.Save(&s); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": s.ID})
}

// UpdateTagsHandler POST /api/servers/update_tags/:id
func (a *API) UpdateTagsHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body struct {
		Tags string `json:"tags"`
	}
	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if err := a.repo.UpdateTags(id, body.Tags); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteServerHandler DELETE /api/servers/delete/:id 同时删除其执行记录
func (a *API) DeleteServerHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := a.repo.DeleteByID(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExportServersHandler GET /api/servers/export?format=json|csv&redact=true
func (a *API) ExportServersHandler(c *gin.Context) {
	list, err := a.repo.ListAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("redact") == "true" {
		for i := range list {
			list[i].KeyFile = "" // 去掉敏感路径
		}
	}
	if c.Query("format") == "csv" {
		c.Data(http.StatusOK, "text/csv", []byte(importexport.RenderServersCSV(list)))
		return
	}
	out, err := importexport.SerializeServersJSON(list)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(out))
}

// ImportServersHandler POST /api/servers/import?format=json|csv 请求体为原始数据
func (a *API) ImportServersHandler(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}
	var ss []domain.Server
	if c.Query("format") == "csv" {
		ss, err = importexport.ParseServersCSV(data)
	} else {
		ss, err = importexport.ParseServersJSON(data)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err = importexport.ValidateServers(ss); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err = a.repo.BulkUpsert(ss); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(ss)})
}
