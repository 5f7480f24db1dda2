package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/QingMing-Bot/scriptrunner/internal/repository"
	"github.com/QingMing-Bot/scriptrunner/internal/service"
)

const (
	HttpReadTimeout = 10 * time.Second
	// 批量下发可能运行很久（多台 × 多条命令 × 超时），写超时需宽松
	HttpWriteTimeout = 10 * time.Minute
)

// API 对外 HTTP 服务，薄封装：请求解析 → service/repository → JSON 响应
type API struct {
	repo repository.ServerRepoIface
	runs repository.RunRepoIface
	svc  *service.DispatchService
}

func New(repo repository.ServerRepoIface, runs repository.RunRepoIface, svc *service.DispatchService) *API {
	return &API{repo: repo, runs: runs, svc: svc}
}

func (a *API) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api")
	api.POST("/run", a.RunHandler)
	api.GET("/runs", a.RunsHandler)

	servers := api.Group("/servers")
	servers.GET("/list", a.ListServersHandler)
	servers.POST("/add", a.AddServerHandler)
	servers.POST("/update_tags/:id", a.UpdateTagsHandler)
	servers.DELETE("/delete/:id", a.DeleteServerHandler)
	servers.GET("/export", a.ExportServersHandler)
	servers.POST("/import", a.ImportServersHandler)

	return router
}

func (a *API) Serve(addr string) error {
	server := &http.Server{
		Addr:         addr,
		ReadTimeout:  HttpReadTimeout,
		WriteTimeout: HttpWriteTimeout,
		Handler:      a.Routes(),
	}
	return server.ListenAndServe()
}
