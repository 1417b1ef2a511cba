package models

import (
    "time"
)

// ProcessingStatus 异步批处理任务状态
type ProcessingStatus string

const (
    StatusPending   ProcessingStatus = "pending"
    StatusRunning   ProcessingStatus = "running"
    StatusCompleted ProcessingStatus = "completed"
    StatusFailed    ProcessingStatus = "failed"
    StatusCancelled ProcessingStatus = "cancelled"
)

// BatchJob 异步批处理任务
type BatchJob struct {
    ID         string            `json:"id"`
    Status     ProcessingStatus  `json:"status"`
    Format     FormatType        `json:"format"`
    Preprocess bool              `json:"preprocess"`
    Inputs     []string          `json:"inputs"`
    Progress   float64           `json:"progress"`
    Statistics *Statistics       `json:"statistics,omitempty"`
    Error      string            `json:"error,omitempty"`
    Metadata   map[string]string `json:"metadata"`
    CreatedAt  time.Time         `json:"createdAt"`
    UpdatedAt  time.Time         `json:"updatedAt,omitempty"`
}

// ImageMetadata 上传图像的元数据
type ImageMetadata struct {
    ID       string `json:"id"`
    Filename string `json:"filename"`
    FileSize int64  `json:"fileSize"`
    MimeType string `json:"mimeType"`
    Width    int    `json:"width"`
    Height   int    `json:"height"`
    Hash     string `json:"hash"`
}
