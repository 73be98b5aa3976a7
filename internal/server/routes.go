package server

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag/v2"

	"github.com/openmined/drivegate/internal/server/docs"
	"github.com/openmined/drivegate/internal/server/handlers/api"
	"github.com/openmined/drivegate/internal/server/handlers/auth"
	"github.com/openmined/drivegate/internal/server/handlers/drive"
	"github.com/openmined/drivegate/internal/server/middlewares"
	"github.com/openmined/drivegate/internal/version"
)

var (
	errRouteNotFound    = errors.New("not found")
	errMethodNotAllowed = errors.New("method not allowed")
)

//	@title			DriveGate API
//	@version		0.1.0
//	@description	Google Drive file operations behind a cookie session.
//	@BasePath		/

func SetupRoutes(config *Config, svc *Services) http.Handler {
	r := gin.New()
	// /api/drive/user/files answers with a redirect to /api/Drive/User/Files
	r.RedirectFixedPath = true
	r.HandleMethodNotAllowed = true

	authH := auth.New(svc.Auth)
	driveH := drive.New(func(ctx *gin.Context) (drive.DriveClient, error) {
		client, err := svc.DriveService(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, &config.Drive, config.Download.SpoolDir, svc.Transfers)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	if config.HTTP.HSTS {
		r.Use(middlewares.HSTS(config.HTTP.DevMode))
	}
	r.Use(middlewares.GZIP())
	r.Use(middlewares.CORS(config.HTTP.CORSOrigins))

	if config.HTTP.StaticDir != "" {
		r.StaticFile("/", filepath.Join(config.HTTP.StaticDir, "index.html"))
		r.Static("/static", config.HTTP.StaticDir)
	} else {
		r.GET("/", IndexHandler)
	}
	r.GET("/healthz", HealthHandler)
	r.GET(config.Auth.CallbackPath(), authH.Callback)

	if config.HTTP.DevMode {
		r.GET("/swagger/doc.json", SwaggerHandler)
	}

	user := r.Group("/api/Drive/User")
	{
		user.GET("/Auth", authH.Auth)
		user.GET("/IsAuthorized", authH.IsAuthorized)
		user.POST("/Logout", authH.Logout)
	}

	gated := user.Group("", middlewares.SessionAuth(svc.Sessions))
	{
		bodyLimit := middlewares.MaxBodySize(config.MaxBodySize())

		gated.GET("/UserInfo", authH.UserInfo)
		gated.GET("/Files", driveH.Files)
		gated.GET("/Transfers", driveH.Transfers)
		gated.GET("/File", driveH.GetFile)
		gated.POST("/File", bodyLimit, driveH.CreateFile)
		gated.PUT("/File", bodyLimit, driveH.UpdateFile)
	}

	r.NoRoute(func(ctx *gin.Context) {
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeNotFound, errRouteNotFound)
	})

	r.NoMethod(func(ctx *gin.Context) {
		api.AbortWithError(ctx, http.StatusMethodNotAllowed, api.CodeNotFound, errMethodNotAllowed)
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func SwaggerHandler(ctx *gin.Context) {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
