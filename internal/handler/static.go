package handler

import (
	"net/http"
	"os"

	"go.uber.org/zap"
)

// staticHandler serves the browser client from static_dir. Without a
// directory every other path is a 404.
func staticHandler(deps *Deps) http.Handler {
	dir := deps.Config.Network.StaticDir
	if dir == "" {
		return http.NotFoundHandler()
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		deps.Log.Warn("static directory unavailable, serving no files", zap.String("dir", dir))
		return http.NotFoundHandler()
	}
	return http.FileServer(http.Dir(dir))
}
