package handlers

import (
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"

    "github.com/feichai0017/vision-ocr/internal/models"
    "github.com/feichai0017/vision-ocr/internal/service/ocr"
    "github.com/feichai0017/vision-ocr/internal/utils/validator"
    "github.com/feichai0017/vision-ocr/pkg/converters"
    "github.com/feichai0017/vision-ocr/pkg/logger"
    "github.com/feichai0017/vision-ocr/pkg/queue"
)

type OCRHandler struct {
    service   ocr.OCRProcessor
    validator *validator.ImageValidator
    logger    logger.Logger
    maxFiles  int
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
    Error   string           `json:"error"`
    Message string           `json:"message"`
    Kind    models.ErrorKind `json:"kind,omitempty"`
}

// ImageResponse is the body of a single-image request.
type ImageResponse struct {
    Filename string                  `json:"filename"`
    Result   *models.FormattedResult `json:"result"`
    Warning  string                  `json:"warning,omitempty"`
}

// RejectedFile is an upload that failed validation and was not processed.
type RejectedFile struct {
    Filename string                      `json:"filename"`
    Errors   []validator.ValidationError `json:"errors"`
}

// BatchResponse is the body of a synchronous batch request.
type BatchResponse struct {
    *converters.ReportDocument
    Rejected []RejectedFile `json:"rejected,omitempty"`
}

// JobResponse 定义任务响应结构
type JobResponse struct {
    *models.BatchJob
    Rejected []RejectedFile `json:"rejected,omitempty"`
}

func NewOCRHandler(service ocr.OCRProcessor, v *validator.ImageValidator, log logger.Logger, maxFiles int) *OCRHandler {
    if v == nil {
        v = validator.NewImageValidator(log, nil)
    }
    if maxFiles <= 0 {
        maxFiles = 100
    }
    return &OCRHandler{
        service:   service,
        validator: v,
        logger:    log.Named("api"),
        maxFiles:  maxFiles,
    }
}

// ProcessImage 同步识别单个图像
func (h *OCRHandler) ProcessImage(c *gin.Context) {
    format, ok := h.format(c)
    if !ok {
        return
    }
    header, err := c.FormFile("file")
    if err != nil {
        h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
        return
    }

    result, data, err := h.validator.ValidateFile(header)
    if err != nil {
        h.handleError(c, http.StatusBadRequest, "Failed to read upload", err)
        return
    }
    if !result.IsValid {
        c.JSON(http.StatusBadRequest, ErrorResponse{
            Error:   result.Message(),
            Message: "Invalid image",
            Kind:    models.KindUnsupportedFormat,
        })
        return
    }

    out, err := h.service.ProcessImageBytes(c.Request.Context(), header.Filename, data, format)
    if err != nil && !(models.IsKind(err, models.KindFormatMismatch) && out != nil) {
        h.handleServiceError(c, "Failed to process image", err)
        return
    }

    resp := ImageResponse{Filename: header.Filename, Result: out}
    if err != nil {
        resp.Warning = err.Error()
    }
    c.JSON(http.StatusOK, resp)
}

// ProcessBatch 同步批量识别
func (h *OCRHandler) ProcessBatch(c *gin.Context) {
    format, ok := h.format(c)
    if !ok {
        return
    }
    files, rejected, ok := h.uploads(c)
    if !ok {
        return
    }

    req := ocr.BatchRequest{
        Format:     format,
        Preprocess: h.preprocess(c),
    }
    if w, err := strconv.Atoi(c.PostForm("workers")); err == nil && w > 0 {
        req.MaxWorkers = w
    }
    for _, f := range files {
        req.Inputs = append(req.Inputs, models.ImageInput{ID: f.Name, Data: f.Data})
    }

    report, err := h.service.ProcessBatch(c.Request.Context(), req)
    if err != nil {
        h.handleServiceError(c, "Failed to process batch", err)
        return
    }

    c.JSON(http.StatusOK, BatchResponse{
        ReportDocument: &converters.ReportDocument{BatchReport: report, Errors: report.Errors()},
        Rejected:       rejected,
    })
}

// SubmitJob 提交异步批处理任务
func (h *OCRHandler) SubmitJob(c *gin.Context) {
    format, ok := h.format(c)
    if !ok {
        return
    }
    files, rejected, ok := h.uploads(c)
    if !ok {
        return
    }

    priority, _ := strconv.Atoi(c.PostForm("priority"))
    job, err := h.service.SubmitBatch(c.Request.Context(), ocr.JobRequest{
        Files:      files,
        Format:     format,
        Preprocess: h.preprocess(c),
        Priority:   priority,
    })
    if err != nil {
        h.handleServiceError(c, "Failed to submit job", err)
        return
    }

    c.JSON(http.StatusAccepted, JobResponse{BatchJob: job, Rejected: rejected})
}

// GetJob 获取任务状态
func (h *OCRHandler) GetJob(c *gin.Context) {
    job, err := h.service.GetJobStatus(c.Request.Context(), c.Param("id"))
    if err != nil {
        h.handleServiceError(c, "Failed to get job status", err)
        return
    }
    c.JSON(http.StatusOK, job)
}

// DownloadReport 下载任务报告
func (h *OCRHandler) DownloadReport(c *gin.Context) {
    jobID := c.Param("id")
    conv, err := converters.ForName(c.DefaultQuery("as", "json"))
    if err != nil {
        h.handleError(c, http.StatusBadRequest, "Invalid report format", err)
        return
    }

    job, err := h.service.GetJobStatus(c.Request.Context(), jobID)
    if err != nil {
        h.handleServiceError(c, "Failed to get job status", err)
        return
    }
    if job.Status != models.StatusCompleted {
        c.JSON(http.StatusConflict, ErrorResponse{
            Error:   fmt.Sprintf("job is %s", job.Status),
            Message: "Report is not available yet",
        })
        return
    }

    report, err := h.service.GetJobReport(c.Request.Context(), jobID)
    if err != nil {
        h.handleServiceError(c, "Failed to get report", err)
        return
    }
    data, err := conv.Convert(report)
    if err != nil {
        h.handleError(c, http.StatusInternalServerError, "Failed to render report", err)
        return
    }

    filename := fmt.Sprintf("ocr_%s%s", jobID, conv.Extension())
    c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
    c.Data(http.StatusOK, conv.ContentType(), data)
}

// CancelJob 取消任务
func (h *OCRHandler) CancelJob(c *gin.Context) {
    jobID := c.Param("id")
    if err := h.service.CancelJob(c.Request.Context(), jobID); err != nil {
        h.handleServiceError(c, "Failed to cancel job", err)
        return
    }
    c.JSON(http.StatusOK, gin.H{
        "message": "Job cancelled successfully",
        "jobId":   jobID,
    })
}

// ListModels 列出可用模型
func (h *OCRHandler) ListModels(c *gin.Context) {
    names, err := h.service.ListModels(c.Request.Context())
    if err != nil {
        h.handleServiceError(c, "Failed to list models", err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"models": names})
}

func (h *OCRHandler) Health(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "status": "ok",
        "time":   time.Now().UTC().Format(time.RFC3339),
    })
}

func (h *OCRHandler) format(c *gin.Context) (models.FormatType, bool) {
    raw := c.PostForm("format")
    if raw == "" {
        raw = c.Query("format")
    }
    if raw == "" {
        return "", true
    }
    f, err := models.ParseFormatType(raw)
    if err != nil {
        h.handleServiceError(c, "Invalid format", err)
        return "", false
    }
    return f, true
}

func (h *OCRHandler) preprocess(c *gin.Context) *bool {
    v, err := strconv.ParseBool(c.PostForm("preprocess"))
    if err != nil {
        return nil
    }
    return &v
}

// uploads validates every file of the "files" field. Invalid files are
// returned separately; the request fails only when nothing is left.
func (h *OCRHandler) uploads(c *gin.Context) ([]ocr.UploadedFile, []RejectedFile, bool) {
    form, err := c.MultipartForm()
    if err != nil {
        h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
        return nil, nil, false
    }
    headers := form.File["files"]
    if len(headers) == 0 {
        h.handleError(c, http.StatusBadRequest, "No files provided", nil)
        return nil, nil, false
    }
    if len(headers) > h.maxFiles {
        h.handleError(c, http.StatusBadRequest, "Too many files",
            fmt.Errorf("%d files uploaded, limit is %d", len(headers), h.maxFiles))
        return nil, nil, false
    }

    var (
        files    []ocr.UploadedFile
        rejected []RejectedFile
        taken    = make(map[string]bool, len(headers))
    )
    for _, fh := range headers {
        res, data, err := h.validator.ValidateFile(fh)
        if err != nil {
            h.handleError(c, http.StatusBadRequest, "Failed to read upload", err)
            return nil, nil, false
        }
        if !res.IsValid {
            rejected = append(rejected, RejectedFile{Filename: fh.Filename, Errors: res.Errors})
            continue
        }
        files = append(files, ocr.UploadedFile{Name: ocr.UniqueName(taken, fh.Filename), Data: data})
    }
    if len(files) == 0 {
        c.JSON(http.StatusBadRequest, gin.H{
            "message":  "No valid images provided",
            "rejected": rejected,
        })
        return nil, nil, false
    }
    return files, rejected, true
}

// handleServiceError maps error kinds onto HTTP status codes.
func (h *OCRHandler) handleServiceError(c *gin.Context, message string, err error) {
    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, ocr.ErrJobsDisabled):
        status = http.StatusNotImplemented
    case errors.Is(err, queue.ErrTaskNotFound):
        status = http.StatusNotFound
    default:
        switch models.KindOf(err) {
        case models.KindInvalidArgument, models.KindUnsupportedFormat, models.KindNoInputFound:
            status = http.StatusBadRequest
        case models.KindBackendUnavailable:
            status = http.StatusServiceUnavailable
        case models.KindTimeout:
            status = http.StatusGatewayTimeout
        case models.KindModelError:
            status = http.StatusBadGateway
        }
    }

    h.logger.Error(message,
        logger.String("path", c.Request.URL.Path),
        logger.Int("status", status),
        logger.Error(err),
    )
    resp := ErrorResponse{Message: message, Error: err.Error()}
    if kind := models.KindOf(err); kind != models.KindUnknown {
        resp.Kind = kind
    }
    c.JSON(status, resp)
}

// handleError 统一错误处理
func (h *OCRHandler) handleError(c *gin.Context, status int, message string, err error) {
    h.logger.Error(message,
        logger.String("path", c.Request.URL.Path),
        logger.Error(err),
    )

    response := ErrorResponse{
        Message: message,
    }
    if err != nil {
        response.Error = err.Error()
    }

    c.JSON(status, response)
}
