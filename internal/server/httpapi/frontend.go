package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// frontend serves files from FrontendDir and falls back to index.html for
// client-side routes. Unknown /api paths stay 404.
func (s *Server) frontend(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, gin.H{"msg": "Not found"})
		return
	}
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"msg": "Not found"})
		return
	}

	root := filepath.Clean(s.opts.FrontendDir)
	name := filepath.Join(root, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		c.File(name)
		return
	}

	c.File(filepath.Join(root, "index.html"))
}
