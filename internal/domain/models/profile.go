package models

// Role роль вызывающего
type Role string

const (
	RoleUser     Role = "user"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
	RoleLogistic Role = "logistic"
)

// Profile — доменный профиль, в который разрешается сессия провайдера идентификации
type Profile struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}
