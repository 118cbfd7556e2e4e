package domain

import (
	"time"
)

type Role string

const (
	RoleAdmin Role = "管理员"
)

// 只有管理员需要登录，用于删除任务等破坏性操作
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	Version      int32     `json:"-"`
}
