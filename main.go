package main

import (
	"github.com/quillboard/quillboard/config"
	"github.com/quillboard/quillboard/models"
	"github.com/quillboard/quillboard/routes"
	"github.com/quillboard/quillboard/service"
	"github.com/quillboard/quillboard/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.Member{},
		&models.Category{},
		&models.Post{},
		&models.PostFile{},
		&models.Comment{},
		&models.PostReport{},
	)

	posts := service.NewPostService(db, cfg.ReportHideThreshold)
	r := routes.SetupRouter(db, posts)

	utils.Sugar.Infof("Starting server on port %s (graceful, report threshold %d)",
		cfg.AppPort, posts.ReportHideThreshold())
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
