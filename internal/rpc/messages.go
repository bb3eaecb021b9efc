package rpc

import (
	"time"

	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/service"
)

// Empty is the request or response of calls that carry no data.
type Empty struct{}

type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Bio       string  `json:"bio,omitempty"`
	Rating    float64 `json:"rating"`
	GroupName string  `json:"group_name"`
	CreatedAt int64   `json:"created_at"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type UserResponse struct {
	User User `json:"user"`
}

// MemberRef is a stored membership, not dereferenced.
type MemberRef struct {
	UserID   string    `json:"user_id"`
	JoinDate time.Time `json:"join_date"`
}

type Group struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	InviteCode string      `json:"invite_code"`
	OwnerID    string      `json:"owner_id"`
	Members    []MemberRef `json:"members"`
	CreatedAt  int64       `json:"created_at"`
}

// Member is a member dereferenced to display data.
type Member struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Bio      string    `json:"bio,omitempty"`
	Rating   float64   `json:"rating"`
	JoinDate time.Time `json:"join_date"`
}

type GroupView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	InviteCode       string   `json:"invite_code"`
	Owner            Member   `json:"owner"`
	OwnerPlaceholder bool     `json:"owner_placeholder,omitempty"`
	Members          []Member `json:"members"`
	CreatedAt        int64    `json:"created_at"`
}

type CreateGroupRequest struct {
	Name string `json:"name"`
}

type JoinGroupRequest struct {
	InviteCode string `json:"invite_code"`
}

type UpdateGroupNameRequest struct {
	Name string `json:"name"`
}

type TransferOwnershipRequest struct {
	NewOwnerID string `json:"new_owner_id"`
}

type RemoveMemberRequest struct {
	MemberID string `json:"member_id"`
}

type GroupResponse struct {
	Group Group `json:"group"`
}

type GetGroupResponse struct {
	Group GroupView `json:"group"`
}

type LeaveGroupResponse struct {
	GroupID    string `json:"group_id"`
	Deleted    bool   `json:"deleted"`
	NewOwnerID string `json:"new_owner_id,omitempty"`
}

type Assignment struct {
	UserID      string     `json:"user_id"`
	WeekStart   time.Time  `json:"week_start"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Task struct {
	ID             string       `json:"id"`
	GroupID        string       `json:"group_id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Difficulty     int          `json:"difficulty"`
	Recurrence     string       `json:"recurrence"`
	RequiredPeople int          `json:"required_people"`
	Deadline       *time.Time   `json:"deadline,omitempty"`
	CreatedBy      string       `json:"created_by"`
	CreatedAt      int64        `json:"created_at"`
	Assignments    []Assignment `json:"assignments"`
}

type CreateTaskRequest struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Difficulty     int        `json:"difficulty"`
	Recurrence     string     `json:"recurrence"`
	RequiredPeople int        `json:"required_people"`
	Deadline       *time.Time `json:"deadline"`
}

type TaskRequest struct {
	TaskID string `json:"task_id"`
}

type AssignTaskRequest struct {
	TaskID  string   `json:"task_id"`
	UserIDs []string `json:"user_ids"`
}

type UpdateTaskStatusRequest struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type TaskResponse struct {
	Task Task `json:"task"`
}

type ListTasksResponse struct {
	Tasks []Task `json:"tasks"`
}

type RunWeeklyAssignmentResponse struct {
	GroupID     string    `json:"group_id"`
	WeekStart   time.Time `json:"week_start"`
	Assigned    int       `json:"assigned"`
	Assignments int       `json:"assignments"`
	Message     string    `json:"message"`
}

func toUser(u *models.User) User {
	return User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Bio:       u.Bio,
		Rating:    u.Rating,
		GroupName: u.GroupName,
		CreatedAt: u.CreatedAt,
	}
}

func toGroup(g *models.Group) Group {
	members := make([]MemberRef, len(g.Members))
	for i, m := range g.Members {
		members[i] = MemberRef{UserID: m.UserID, JoinDate: m.JoinDate}
	}
	return Group{
		ID:         g.ID,
		Name:       g.Name,
		InviteCode: g.InviteCode,
		OwnerID:    g.OwnerID,
		Members:    members,
		CreatedAt:  g.CreatedAt,
	}
}

func toMember(m service.MemberView) Member {
	return Member{
		ID:       m.ID,
		Name:     m.Name,
		Email:    m.Email,
		Bio:      m.Bio,
		Rating:   m.Rating,
		JoinDate: m.JoinDate,
	}
}

func toGroupView(v *service.GroupView) GroupView {
	members := make([]Member, len(v.Members))
	for i, m := range v.Members {
		members[i] = toMember(m)
	}
	return GroupView{
		ID:               v.ID,
		Name:             v.Name,
		InviteCode:       v.InviteCode,
		Owner:            toMember(v.Owner),
		OwnerPlaceholder: v.OwnerPlaceholder,
		Members:          members,
		CreatedAt:        v.CreatedAt,
	}
}

func toTask(t *models.Task) Task {
	assignments := make([]Assignment, len(t.Assignments))
	for i, a := range t.Assignments {
		assignments[i] = Assignment{
			UserID:      a.UserID,
			WeekStart:   a.WeekStart,
			Status:      string(a.Status),
			CompletedAt: a.CompletedAt,
		}
	}
	return Task{
		ID:             t.ID,
		GroupID:        t.GroupID,
		Name:           t.Name,
		Description:    t.Description,
		Difficulty:     t.Difficulty,
		Recurrence:     string(t.Recurrence),
		RequiredPeople: t.RequiredPeople,
		Deadline:       t.Deadline,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt,
		Assignments:    assignments,
	}
}
