package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/service"
)

func (h *Handler) CreatePlanning(w http.ResponseWriter, r *http.Request) {
	var req service.CreatePlanningInput

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	creation, err := h.service.CreatePlanningWithDependents(r.Context(), req)
	if err != nil {
		var validationErr *service.ValidationError
		switch {
		case errors.As(err, &validationErr):
			h.badRequest(w, r, validationErr.Err)
		default:
			// 事务已经回滚，把失败原因返回给调用方
			h.logInternalServerError(r, err)
			h.errorResponse(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.notifyAssignedEmployees(r.Context(), creation)

	h.writeJSON(w, r, http.StatusCreated, struct {
		Message  string           `json:"message"`
		Planning *domain.Planning `json:"planning"`
		Jours    []*domain.Jour   `json:"jours"`
	}{
		Message:  "Planning, jours, and employees created successfully!",
		Planning: creation.Planning,
		Jours:    creation.Jours,
	})
}

// notifyAssignedEmployees 通知被分配的员工，此时排班已经提交，投递失败只记录日志
func (h *Handler) notifyAssignedEmployees(ctx context.Context, creation *domain.PlanningCreation) {
	sessions := make([]domain.Session, 0, len(creation.Jours))
	for _, jour := range creation.Jours {
		sessions = append(sessions, domain.Session{HEntree: jour.HEntree, HSortie: jour.HSortie})
	}

	for _, employee := range creation.AssignedEmployees {
		if employee.Email == "" {
			continue
		}

		mailMessage := domain.MailMessage{
			Type: domain.MailTypePlanningAssigned,
			To:   employee.Email,
			Data: domain.PlanningAssignedMailData{
				FullName: employee.FullName,
				Intitule: creation.Planning.Intitule,
				Sessions: sessions,
			},
		}

		if err := h.publishMail(mailMessage); err != nil {
			slog.WarnContext(ctx, "无法投递排班通知邮件", "planning", creation.Planning.ID, "employee", employee.ID, "error", err)
		}
	}
}

func (h *Handler) GetAllPlannings(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, "page must be an integer")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.errorResponse(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}

	page, limit = h.service.NormalizePagination(page, limit)

	plannings, err := h.service.ListPlannings(r.Context(), page, limit)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	w.Header().Set("X-Page", strconv.Itoa(page))
	w.Header().Set("X-Limit", strconv.Itoa(limit))
	h.writeJSON(w, r, http.StatusOK, plannings)
}

func (h *Handler) GetPlanning(w http.ResponseWriter, r *http.Request) {
	planning, err := h.service.GetPlanningByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPlanningNotFound):
			h.notFound(w, r, "Planning not found")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.writeJSON(w, r, http.StatusOK, planning)
}

func (h *Handler) UpdatePlanning(w http.ResponseWriter, r *http.Request) {
	var req service.PlanningPatch

	if err := h.readStrictJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	planning, err := h.service.UpdatePlanning(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		var validationErr *service.ValidationError
		switch {
		case errors.As(err, &validationErr):
			h.badRequest(w, r, validationErr.Err)
		case errors.Is(err, service.ErrPlanningNotFound):
			h.notFound(w, r, "Planning not found")
		case errors.Is(err, service.ErrPlanningConflict):
			h.errorResponse(w, r, http.StatusConflict, "Planning was modified concurrently, please retry")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.writeJSON(w, r, http.StatusOK, planning)
}

func (h *Handler) DeletePlanning(w http.ResponseWriter, r *http.Request) {
	planning, err := h.service.DeletePlanning(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPlanningNotFound):
			h.notFound(w, r, "Planning not found")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.writeJSON(w, r, http.StatusOK, struct {
		Message  string           `json:"message"`
		Planning *domain.Planning `json:"planning"`
	}{
		Message:  "Planning deleted",
		Planning: planning,
	})
}

// queryInt 参数缺失时返回 0，由调用方决定默认值
func queryInt(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
