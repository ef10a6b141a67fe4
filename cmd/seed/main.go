package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/handler"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/seed"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/service"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var file string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 创建数据表, 2: 插入随机员工, 3: 插入随机账户, 4: 插入随机排班, 5: 从 CSV 导入真实数据)")
	flag.IntVar(&n, "n", 5, "要插入的记录数量")
	flag.StringVar(&file, "file", "", "要导入的 CSV 文件路径")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 创建 repository 和 service
	repo := repository.NewRepository(cfg, dbpool)
	svc, err := service.New(cfg, repo, handler.NewValidator())
	if err != nil {
		logger.Error("无法创建 service", "error", err)
		return
	}

	ctx = context.Background()

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		if err := repo.CreateSchema(ctx); err != nil {
			slog.Error("无法创建数据表", slog.String("error", err.Error()))
			return
		}
		slog.Info("创建数据表成功")
	case 2:
		if n <= 0 {
			slog.Error("请输入合法的员工数量")
		} else {
			cnt := n
			for i := 0; i < n; i++ {
				employee := utils.GenerateRandomEmployee(cfg.Email.UserDomain)
				if err := repo.CreateEmployee(ctx, employee); err != nil {
					slog.Error("无法插入员工", slog.String("error", err.Error()))
					continue
				}

				cnt--
			}

			slog.Info("插入员工成功", slog.Int("count", n-cnt))
		}
	case 3:
		if n <= 0 {
			slog.Error("请输入合法的账户数量")
		} else {
			cnt := n
			for i := 0; i < n; i++ {
				account, err := utils.GenerateRandomAccount(cfg.Seed.Account.Password, cfg.Email.UserDomain)
				if err != nil {
					slog.Error("无法生成随机账户", slog.String("error", err.Error()))
					continue
				}

				if err := repo.CreateAccount(ctx, account); err != nil {
					slog.Error("无法插入账户", slog.String("error", err.Error()))
					continue
				}

				cnt--
			}

			slog.Info("插入账户成功", slog.Int("count", n-cnt))
		}
	case 4:
		if n <= 0 {
			slog.Error("请输入合法的排班数量")
		} else {
			// 先获取所有员工
			employees, err := repo.GetAllEmployees(ctx)
			if err != nil {
				slog.Error("无法获取所有员工", slog.String("error", err.Error()))
				return
			}

			employeeIDs := make([]string, 0, len(employees))
			for _, employee := range employees {
				employeeIDs = append(employeeIDs, employee.ID)
			}

			cnt := n
			for i := 0; i < n; i++ {
				input := service.CreatePlanningInput{
					Intitule:  "排班 " + utils.GenerateRandomID(2, 4),
					Sessions:  utils.GenerateRandomSessions(),
					Employees: utils.GenerateRandomSubset(employeeIDs),
				}

				if _, err := svc.CreatePlanningWithDependents(ctx, input); err != nil {
					slog.Error("无法插入排班", slog.String("error", err.Error()))
					continue
				}

				cnt--
			}

			slog.Info("插入排班成功", slog.Int("count", n-cnt))
		}
	case 5:
		if file == "" {
			slog.Error("请通过 -file 指定要导入的 CSV 文件")
			return
		}

		f, err := os.Open(file)
		if err != nil {
			slog.Error("打开文件失败", "error", err)
			return
		}
		defer f.Close()

		if _, err := seed.ImportCSV(ctx, repo, svc, f); err != nil {
			slog.Error("导入数据失败", "error", err)
			return
		}
	default:
		slog.Error("指定的操作非法")
	}
}
