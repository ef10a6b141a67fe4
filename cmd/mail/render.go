package main

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// envelope 与 domain.MailMessage 对应，Data 延迟到确定邮件类型之后再解析
type envelope struct {
	Type string          `json:"type"`
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

type renderedMail struct {
	Subject  string
	Template *template.Template
	Data     any
}

func render(mailType string, raw json.RawMessage) (*renderedMail, error) {
	switch mailType {
	case domain.MailTypePlanningAssigned:
		var data domain.PlanningAssignedMailData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
		return &renderedMail{
			Subject:  fmt.Sprintf("排班管理系统 - 您已被分配到 %s", data.Intitule),
			Template: templates.Lookup("planning_assigned.html"),
			Data:     data,
		}, nil
	case domain.MailTypeResetPassword:
		var data domain.ResetPasswordMailData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
		return &renderedMail{
			Subject:  "排班管理系统 - 重置密码",
			Template: templates.Lookup("reset_password.html"),
			Data:     data,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported mail type %q", mailType)
	}
}
