package domain

import "time"

type Employee struct {
	ID         string    `json:"id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	IDPlanning *string   `json:"id_planning"` // 为空表示还没有被分配到任何排班
	CreatedAt  time.Time `json:"createdAt"`
}
