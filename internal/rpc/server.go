// Package rpc exposes the roommates services as Connect unary procedures.
// Handlers only translate messages and errors; all rules live in the
// service package.
package rpc

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/roommates/internal/auth"
	"github.com/mmynk/roommates/internal/metrics"
	"github.com/mmynk/roommates/internal/middleware"
	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/service"
)

// Procedure paths.
const (
	RegisterProcedure       = "/roommates.v1.AuthService/Register"
	LoginProcedure          = "/roommates.v1.AuthService/Login"
	GetCurrentUserProcedure = "/roommates.v1.AuthService/GetCurrentUser"
	DeleteAccountProcedure  = "/roommates.v1.AuthService/DeleteAccount"

	CreateGroupProcedure       = "/roommates.v1.GroupService/CreateGroup"
	JoinGroupProcedure         = "/roommates.v1.GroupService/JoinGroup"
	GetGroupProcedure          = "/roommates.v1.GroupService/GetGroup"
	UpdateGroupNameProcedure   = "/roommates.v1.GroupService/UpdateGroupName"
	TransferOwnershipProcedure = "/roommates.v1.GroupService/TransferOwnership"
	RemoveMemberProcedure      = "/roommates.v1.GroupService/RemoveMember"
	LeaveGroupProcedure        = "/roommates.v1.GroupService/LeaveGroup"

	CreateTaskProcedure          = "/roommates.v1.TaskService/CreateTask"
	ListTasksProcedure           = "/roommates.v1.TaskService/ListTasks"
	DeleteTaskProcedure          = "/roommates.v1.TaskService/DeleteTask"
	AssignTaskProcedure          = "/roommates.v1.TaskService/AssignTask"
	UpdateTaskStatusProcedure    = "/roommates.v1.TaskService/UpdateTaskStatus"
	RunWeeklyAssignmentProcedure = "/roommates.v1.TaskService/RunWeeklyAssignment"
)

// Server holds the services behind the procedures.
type Server struct {
	Accounts *service.AuthService
	Groups   *service.GroupService
	Tasks    *service.TaskService
}

// Handler returns a mux serving every procedure. Register and Login are
// public; everything else requires a bearer token issued by jwtManager.
func (s *Server) Handler(jwtManager *auth.JWTManager, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	opts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(
			middleware.MetricsInterceptor(m),
			middleware.RequireAuth(jwtManager, RegisterProcedure, LoginProcedure),
			middleware.LoggingInterceptor(logger),
		),
	}

	mux := http.NewServeMux()

	unary(mux, RegisterProcedure, opts, func(ctx context.Context, req *RegisterRequest) (*SessionResponse, error) {
		session, err := s.Accounts.Register(ctx, req.Email, req.Name, req.Password)
		if err != nil {
			return nil, err
		}
		return &SessionResponse{User: toUser(session.User), Token: session.Token}, nil
	})
	unary(mux, LoginProcedure, opts, func(ctx context.Context, req *LoginRequest) (*SessionResponse, error) {
		session, err := s.Accounts.Login(ctx, req.Email, req.Password)
		if err != nil {
			return nil, err
		}
		return &SessionResponse{User: toUser(session.User), Token: session.Token}, nil
	})
	unary(mux, GetCurrentUserProcedure, opts, func(ctx context.Context, _ *Empty) (*UserResponse, error) {
		user, err := s.Accounts.GetCurrentUser(ctx, middleware.GetUserID(ctx))
		if err != nil {
			return nil, err
		}
		return &UserResponse{User: toUser(user)}, nil
	})
	unary(mux, DeleteAccountProcedure, opts, func(ctx context.Context, _ *Empty) (*Empty, error) {
		return &Empty{}, s.Accounts.DeleteAccount(ctx, middleware.GetUserID(ctx))
	})

	unary(mux, CreateGroupProcedure, opts, func(ctx context.Context, req *CreateGroupRequest) (*GroupResponse, error) {
		return groupResponse(s.Groups.CreateGroup(ctx, middleware.GetUserID(ctx), req.Name))
	})
	unary(mux, JoinGroupProcedure, opts, func(ctx context.Context, req *JoinGroupRequest) (*GroupResponse, error) {
		return groupResponse(s.Groups.JoinGroup(ctx, middleware.GetUserID(ctx), req.InviteCode))
	})
	unary(mux, GetGroupProcedure, opts, func(ctx context.Context, _ *Empty) (*GetGroupResponse, error) {
		view, err := s.Groups.GetGroupForUser(ctx, middleware.GetUserID(ctx))
		if err != nil {
			return nil, err
		}
		return &GetGroupResponse{Group: toGroupView(view)}, nil
	})
	unary(mux, UpdateGroupNameProcedure, opts, func(ctx context.Context, req *UpdateGroupNameRequest) (*GroupResponse, error) {
		return groupResponse(s.Groups.UpdateGroupName(ctx, middleware.GetUserID(ctx), req.Name))
	})
	unary(mux, TransferOwnershipProcedure, opts, func(ctx context.Context, req *TransferOwnershipRequest) (*GroupResponse, error) {
		return groupResponse(s.Groups.TransferOwnership(ctx, middleware.GetUserID(ctx), req.NewOwnerID))
	})
	unary(mux, RemoveMemberProcedure, opts, func(ctx context.Context, req *RemoveMemberRequest) (*GroupResponse, error) {
		return groupResponse(s.Groups.RemoveMember(ctx, middleware.GetUserID(ctx), req.MemberID))
	})
	unary(mux, LeaveGroupProcedure, opts, func(ctx context.Context, _ *Empty) (*LeaveGroupResponse, error) {
		res, err := s.Groups.LeaveGroup(ctx, middleware.GetUserID(ctx))
		if err != nil {
			return nil, err
		}
		return &LeaveGroupResponse{GroupID: res.GroupID, Deleted: res.Deleted, NewOwnerID: res.NewOwnerID}, nil
	})

	unary(mux, CreateTaskProcedure, opts, func(ctx context.Context, req *CreateTaskRequest) (*TaskResponse, error) {
		return taskResponse(s.Tasks.CreateTask(ctx, middleware.GetUserID(ctx), service.TaskInput{
			Name:           req.Name,
			Description:    req.Description,
			Difficulty:     req.Difficulty,
			Recurrence:     models.Recurrence(req.Recurrence),
			RequiredPeople: req.RequiredPeople,
			Deadline:       req.Deadline,
		}))
	})
	unary(mux, ListTasksProcedure, opts, func(ctx context.Context, _ *Empty) (*ListTasksResponse, error) {
		tasks, err := s.Tasks.ListTasks(ctx, middleware.GetUserID(ctx))
		if err != nil {
			return nil, err
		}
		res := &ListTasksResponse{Tasks: make([]Task, len(tasks))}
		for i, t := range tasks {
			res.Tasks[i] = toTask(t)
		}
		return res, nil
	})
	unary(mux, DeleteTaskProcedure, opts, func(ctx context.Context, req *TaskRequest) (*Empty, error) {
		return &Empty{}, s.Tasks.DeleteTask(ctx, middleware.GetUserID(ctx), req.TaskID)
	})
	unary(mux, AssignTaskProcedure, opts, func(ctx context.Context, req *AssignTaskRequest) (*TaskResponse, error) {
		return taskResponse(s.Tasks.AssignTask(ctx, middleware.GetUserID(ctx), req.TaskID, req.UserIDs))
	})
	unary(mux, UpdateTaskStatusProcedure, opts, func(ctx context.Context, req *UpdateTaskStatusRequest) (*TaskResponse, error) {
		return taskResponse(s.Tasks.UpdateTaskStatus(ctx, middleware.GetUserID(ctx), req.TaskID, models.Status(req.Status)))
	})
	unary(mux, RunWeeklyAssignmentProcedure, opts, func(ctx context.Context, _ *Empty) (*RunWeeklyAssignmentResponse, error) {
		res, err := s.Tasks.RunWeeklyAssignmentForUser(ctx, middleware.GetUserID(ctx))
		if err != nil {
			return nil, err
		}
		return &RunWeeklyAssignmentResponse{
			GroupID:     res.GroupID,
			WeekStart:   res.WeekStart,
			Assigned:    res.Assigned,
			Assignments: res.Assignments,
			Message:     res.Message,
		}, nil
	})

	return mux
}

// unary registers fn as a Connect unary handler for procedure, converting
// service errors on the way out.
func unary[Req, Res any](mux *http.ServeMux, procedure string, opts []connect.HandlerOption, fn func(context.Context, *Req) (*Res, error)) {
	mux.Handle(procedure, connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, toConnectError(err)
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	))
}

func groupResponse(g *models.Group, err error) (*GroupResponse, error) {
	if err != nil {
		return nil, err
	}
	return &GroupResponse{Group: toGroup(g)}, nil
}

func taskResponse(t *models.Task, err error) (*TaskResponse, error) {
	if err != nil {
		return nil, err
	}
	return &TaskResponse{Task: toTask(t)}, nil
}
