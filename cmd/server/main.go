// cmd/server/main.go
package main

import (
	"context"
	"log"
	"os"

	"github.com/lanbinleo/NovelWriter/internal/app"
	"github.com/lanbinleo/NovelWriter/internal/config"
	"github.com/lanbinleo/NovelWriter/internal/utils"
)

func main() {
	log.Println("🚀 启动 NovelWriter 服务器...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 命令行第一个参数可覆盖端口
	if len(os.Args) > 1 {
		cfg, err = cfg.WithPort(os.Args[1])
		if err != nil {
			log.Fatalf("无效的端口参数: %v", err)
		}
	}
	log.Printf("✅ 配置加载完成，端口: %s", cfg.Port)

	// 3. 初始化应用
	application, err := app.New(cfg, utils.GetLogger())
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	// 4. 本地无数据时从远程拉取
	if cfg.SeedEnabled() {
		result, err := application.Seed(context.Background())
		if err != nil {
			log.Printf("⚠️ 远程数据初始化失败: %v", err)
		} else if result.IndexSeeded {
			log.Printf("✅ 远程数据初始化完成，书籍: %d，跳过: %d，失败: %d",
				result.BooksSeeded, result.BooksSkipped, result.BooksFailed)
		}
	}

	// 5. 启动服务器
	log.Printf("🔗 访问地址: http://localhost:%s", cfg.Port)
	if err := application.Run(); err != nil {
		log.Fatalf("❌ 服务器运行失败: %v", err)
	}
}
