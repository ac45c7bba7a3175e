package handlers

import (
	"context"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/mvaberg/klubbkasse/internal/model"
	xhttp "github.com/mvaberg/klubbkasse/pkg/http"
)

type MemberService interface {
	Create(ctx context.Context, p model.MemberCreateRequest) (*model.Member, error)
	Get(ctx context.Context, id int64) (*model.Member, error)
	List(ctx context.Context, f model.MemberFilter) ([]*model.Member, error)
}

type MemberHandler struct {
	svc MemberService
}

func RegisterMemberRoutes(e *router.Group, h *MemberHandler) {
	e.POST("/members", h.CreateMember)
	e.GET("/members", h.ListMembers)
	e.GET("/members/{id}", h.GetMember)
}

func NewMemberHandler(memberService MemberService) *MemberHandler {
	return &MemberHandler{
		svc: memberService,
	}
}

type createMemberRequest struct {
	Name           string `json:"name"`
	Role           string `json:"role"`
	MembershipType string `json:"membership_type"`
}

type memberListResponse struct {
	Items []*model.Member `json:"items"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *MemberHandler) CreateMember(ctx *xhttp.RequestCtx) {
	var req createMemberRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	p := model.MemberCreateRequest{
		Name:           req.Name,
		Role:           model.Role(req.Role),
		MembershipType: model.MembershipType(req.MembershipType),
	}
	m, err := h.svc.Create(ctx, p)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 201, m)
}

func (h *MemberHandler) GetMember(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid id")
		return
	}
	m, err := h.svc.Get(ctx, id)
	if err != nil {
		writeError(ctx, errStatus(err), err.Error())
		return
	}
	writeJSON(ctx, 200, m)
}

func (h *MemberHandler) ListMembers(ctx *xhttp.RequestCtx) {
	var f model.MemberFilter

	if v := query(ctx, "active"); v != "" {
		if b, e := strconv.ParseBool(v); e == nil {
			f.Active = &b
		}
	}
	if v := query(ctx, "membership_type"); v != "" {
		mt := model.MembershipType(v)
		f.MembershipType = &mt
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}

	items, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, memberListResponse{Items: items})
}
