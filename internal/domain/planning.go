package domain

import "time"

// Session 是创建排班时提交的一个时间段，创建成功后会变成一条 Jour 记录
type Session struct {
	HEntree string `json:"h_entree"`
	HSortie string `json:"h_sortie"`
}

type Jour struct {
	ID         string    `json:"id"`
	HEntree    string    `json:"h_entree"`
	HSortie    string    `json:"h_sortie"`
	IDPlanning string    `json:"id_planning"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Planning struct {
	ID          string    `json:"id"`
	Intitule    string    `json:"intitule"`
	EmployeeIDs []string  `json:"employees"`
	IsDeleted   bool      `json:"isDeleted"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Version     int32     `json:"-"`
}

// PlanningDetail 是展开后的排班：员工 ID 被替换为员工记录，并附带所有 Jour
type PlanningDetail struct {
	ID        string      `json:"id"`
	Intitule  string      `json:"intitule"`
	Employees []*Employee `json:"employees"`
	Jours     []*Jour     `json:"jours"`
	IsDeleted bool        `json:"isDeleted"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// PlanningCreation 是一次成功创建的结果
type PlanningCreation struct {
	Planning          *Planning
	Jours             []*Jour
	AssignedEmployees []*Employee
}
