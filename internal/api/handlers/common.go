package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/sagecreek/internal/api/middleware"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// writeError never exposes wrapped causes; internal failures get the generic retry hint.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(utils.HTTPStatus(err), APIError{
		Code:    utils.CodeOf(err),
		Message: utils.UserMessage(err),
	})
}

func requireSession(c *gin.Context) (*models.Session, bool) {
	if s, ok := middleware.CurrentSession(c); ok {
		return s, true
	}
	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "no session", nil))
	return nil, false
}

// splitList accepts repeated fields and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true
	}
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
}
