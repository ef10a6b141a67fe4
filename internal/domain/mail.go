package domain

const (
	MailTypePlanningAssigned = "planning_assigned"
	MailTypeResetPassword    = "reset_password"
)

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

type PlanningAssignedMailData struct {
	FullName string    `json:"fullName"`
	Intitule string    `json:"intitule"`
	Sessions []Session `json:"sessions"`
}

type ResetPasswordMailData struct {
	Username   string `json:"username"`
	OTP        string `json:"otp"`
	Expiration int    `json:"expiration"`
}
