package routes

import (
    "github.com/gin-gonic/gin"

    "github.com/feichai0017/vision-ocr/api/handlers"
    "github.com/feichai0017/vision-ocr/api/middleware"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowOrigins []string) {
    // 全局中间件
    r.Use(middleware.CORS(allowOrigins...))

    // API 版本组
    v1 := r.Group("/api/v1")

    // OCR 路由组
    o := v1.Group("/ocr")
    {
        o.GET("/health", h.OCR.Health)
        o.POST("/image", h.OCR.ProcessImage)
        o.POST("/batch", h.OCR.ProcessBatch)
        o.POST("/jobs", h.OCR.SubmitJob)
        o.GET("/jobs/:id", h.OCR.GetJob)
        o.GET("/jobs/:id/download", h.OCR.DownloadReport)
        o.DELETE("/jobs/:id", h.OCR.CancelJob)
        o.GET("/models", h.OCR.ListModels)
    }
}
