package models

import (
	"database/sql"
	"time"
)

type Area struct {
	UID       string
	TenantID  string
	Name      string
	OwnerUID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AreaMember struct {
	AreaUID   string
	UserUID   string
	Role      string
	AddedBy   string
	CreatedAt time.Time
}

type AreaSubscriber struct {
	AreaUID   string
	UserUID   string
	AddedBy   string
	Source    string
	CreatedAt time.Time
}

type Project struct {
	UID       string
	TenantID  string
	OwnerUID  string
	AreaUID   sql.NullString
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Task struct {
	UID           string
	TenantID      string
	OwnerUID      string
	AssignedToUID sql.NullString
	ProjectUID    sql.NullString
	ParentTaskUID sql.NullString
	Name          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Note struct {
	UID        string
	TenantID   string
	OwnerUID   string
	ProjectUID sql.NullString
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Permission struct {
	ID             uint
	TenantID       string
	UserUID        string
	ResourceType   string
	ResourceUID    string
	AccessLevel    string
	Propagation    string
	GrantedByUID   string
	SourceActionID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Action struct {
	ID           string
	TenantID     string
	ActorUID     string
	Verb         string
	ResourceType string
	ResourceUID  string
	TargetUID    string
	AccessLevel  sql.NullString
	Metadata     []byte
	IP           sql.NullString
	UserAgent    sql.NullString
	CreatedAt    time.Time
}
