package service

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/repository"
)

type Service struct {
	cfg        *config.Config
	repository *repository.Repository
	validate   *validator.Validate
}

func New(cfg *config.Config, repo *repository.Repository, validate *validator.Validate) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("new service: config is nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("new service: repository is nil")
	}
	if validate == nil {
		return nil, fmt.Errorf("new service: validator is nil")
	}
	return &Service{cfg: cfg, repository: repo, validate: validate}, nil
}

// uniqueIDs 去掉重复的 ID 并保持原有顺序
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}
