package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/auth"
	"github.com/cmlabs-hris/geo-attendance/internal/handler/http/response"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
)

type ApprovalHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Approve(w http.ResponseWriter, r *http.Request)
	Reject(w http.ResponseWriter, r *http.Request)
}

type approvalHandlerImpl struct {
	attendanceService attendance.AttendanceService
}

func NewApprovalHandler(attendanceService attendance.AttendanceService) ApprovalHandler {
	return &approvalHandlerImpl{
		attendanceService: attendanceService,
	}
}

// List implements ApprovalHandler.
func (h *approvalHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := attendance.ApprovalFilter{}

	if employeeID := query.Get("employee_id"); employeeID != "" {
		filter.EmployeeID = &employeeID
	}
	if state := query.Get("state"); state != "" {
		filter.State = &state
	}
	if kind := query.Get("kind"); kind != "" {
		filter.Kind = &kind
	}
	if date := query.Get("date"); date != "" {
		filter.Date = &date
	}

	filter.Page = getIntQueryParam(r, "page", 1)
	filter.Limit = getIntQueryParam(r, "limit", 20)
	filter.SortOrder = query.Get("sort_order")

	results, err := h.attendanceService.ListApprovals(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMeta(w, results.Approvals, &response.Meta{
		Page:       results.Page,
		Limit:      results.Limit,
		TotalItems: results.TotalCount,
		TotalPages: results.TotalPages,
		Showing:    results.Showing,
	})
}

// Get implements ApprovalHandler.
func (h *approvalHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	approval, err := h.attendanceService.GetApproval(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.NewApprovalResponse(approval))
}

// Approve implements ApprovalHandler.
func (h *approvalHandlerImpl) Approve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDecision(w, r)
	if !ok {
		return
	}

	record, err := h.attendanceService.ApproveRequest(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Attendance approved successfully", attendance.NewRecordResponse(record))
}

// Reject implements ApprovalHandler.
func (h *approvalHandlerImpl) Reject(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDecision(w, r)
	if !ok {
		return
	}

	record, err := h.attendanceService.RejectRequest(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Attendance rejected successfully", attendance.NewRecordResponse(record))
}

// decodeDecision reads the optional remarks body and fills in the request ID
// and the deciding admin. It writes the error response itself.
func decodeDecision(w http.ResponseWriter, r *http.Request) (attendance.DecideApprovalRequest, bool) {
	claims, err := jwt.ClaimsFromContext(r.Context())
	if err != nil {
		response.HandleError(w, auth.ErrInvalidToken)
		return attendance.DecideApprovalRequest{}, false
	}

	var req attendance.DecideApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request format", nil)
		return attendance.DecideApprovalRequest{}, false
	}
	req.RequestID = chi.URLParam(r, "id")
	req.AdminID = claims.EmployeeID

	return req, true
}
