package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dadaal/internal/dadaalapi"
)

type PaginatedTx struct {
	Count    int64         `json:"count"`
	Next     string        `json:"next"`
	Previous string        `json:"previous"`
	Results  []interface{} `json:"results"`
}

// GetTransactionsList returns the caller's transaction log, newest first.
func GetTransactionsList(c *gin.Context) {
	app := c.MustGet("app").(*dadaalapi.App)
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil || size < 1 || size > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 1 and 100"})
		return
	}
	user, ok := currentUser(c, app)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	query := app.Db.Model(&dadaalapi.Transaction{}).Where("user_id = ?", user.Id)
	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var transactions []dadaalapi.Transaction
	res := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&transactions)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	paginated := PaginatedTx{
		Count:   count,
		Results: []interface{}{},
	}
	if int64(page*size) < count {
		paginated.Next = fmt.Sprintf("/users/tx/?page=%d&size=%d", page+1, size)
	}
	if page > 1 {
		paginated.Previous = fmt.Sprintf("/users/tx/?page=%d&size=%d", page-1, size)
	}
	for _, tx := range transactions {
		paginated.Results = append(paginated.Results, tx)
	}
	c.JSON(http.StatusOK, paginated)
}
