package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSONResponse is the envelope every endpoint answers with. Code 0 means
// success; non-zero codes identify the failure kind to API clients.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PageData wraps a listing page and its pagination metadata.
type PageData struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// NewPageData builds the paginated payload for a 1-based page.
func NewPageData(items interface{}, page, pageSize int, total int64) PageData {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return PageData{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	}
}

// Success writes the standard success envelope.
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, JSONResponse{Code: 0, Message: "success", Data: data})
}

// SuccessPage writes a paginated success envelope.
func SuccessPage(ctx *gin.Context, items interface{}, page, pageSize int, total int64) {
	Success(ctx, NewPageData(items, page, pageSize, total))
}

// Error writes the standard error envelope with the given HTTP status and
// application code.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.JSON(status, JSONResponse{Code: code, Message: message})
}
