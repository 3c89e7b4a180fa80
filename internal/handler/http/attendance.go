package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/auth"
	"github.com/cmlabs-hris/geo-attendance/internal/handler/http/response"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/geocode"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/jwt"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/validator"
	"github.com/cmlabs-hris/geo-attendance/internal/service/file"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

type AttendanceHandler interface {
	ClockIn(w http.ResponseWriter, r *http.Request)
	ClockOut(w http.ResponseWriter, r *http.Request)
	GetMyRecord(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
}

type attendanceHandlerImpl struct {
	attendanceService attendance.AttendanceService
	fileService       file.FileService
	employees         attendance.EmployeeDirectory
	faceVerifier      attendance.FaceVerifier
	geocoder          attendance.Geocoder
	config            config.AttendanceConfig
	now               func() time.Time
}

func NewAttendanceHandler(
	attendanceService attendance.AttendanceService,
	fileService file.FileService,
	employees attendance.EmployeeDirectory,
	faceVerifier attendance.FaceVerifier,
	geocoder attendance.Geocoder,
	cfg config.AttendanceConfig,
) AttendanceHandler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &attendanceHandlerImpl{
		attendanceService: attendanceService,
		fileService:       fileService,
		employees:         employees,
		faceVerifier:      faceVerifier,
		geocoder:          geocoder,
		config:            cfg,
		now:               time.Now,
	}
}

// ClockIn implements AttendanceHandler.
func (h *attendanceHandlerImpl) ClockIn(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, attendance.KindIn)
}

// ClockOut implements AttendanceHandler.
func (h *attendanceHandlerImpl) ClockOut(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, attendance.KindOut)
}

func (h *attendanceHandlerImpl) submit(w http.ResponseWriter, r *http.Request, kind attendance.Kind) {
	ctx := r.Context()

	claims, err := jwt.ClaimsFromContext(ctx)
	if err != nil {
		response.HandleError(w, auth.ErrInvalidToken)
		return
	}

	// Parse multipart form (max 10MB)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		slog.Error("Failed to parse multipart form", "error", err)
		response.BadRequest(w, "Failed to parse form data", nil)
		return
	}

	// Get JSON data from 'data' field
	dataJSON := r.FormValue("data")
	if dataJSON == "" {
		response.BadRequest(w, "Field 'data' is required", nil)
		return
	}

	var req attendance.SubmitAttendanceRequest
	if err := json.Unmarshal([]byte(dataJSON), &req); err != nil {
		slog.Error("Failed to unmarshal JSON data", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	photo, photoHeader, err := r.FormFile("photo")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			response.BadRequest(w, "Attendance proof photo is required", nil)
			return
		}
		slog.Error("Failed to get file from form", "error", err)
		response.BadRequest(w, "Invalid file upload", nil)
		return
	}
	defer photo.Close()

	req.EmployeeID = claims.EmployeeID
	req.Kind = kind
	req.File = photo
	req.FileHeader = photoHeader

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	timestamp, err := h.captureTime(req.CapturedAt)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	coord := attendance.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := coord.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	employee, err := h.employees.GetByID(ctx, claims.EmployeeID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	date := attendance.DateOf(timestamp, h.config.Location)
	photoRef, err := h.fileService.UploadAttendancePhoto(ctx, employee.ID, date, kind, req.File, req.FileHeader.Filename)
	if err != nil {
		if errors.Is(err, file.ErrUnsupportedImage) {
			response.ValidationError(w, map[string]string{"photo": err.Error()})
			return
		}
		response.HandleError(w, err)
		return
	}

	verified, address := h.inspect(ctx, photoRef, employee.ReferencePhotoRef, coord)

	result, err := h.attendanceService.RecordAttendance(ctx, attendance.RecordAttendanceRequest{
		EmployeeID:   employee.ID,
		Kind:         kind,
		Timestamp:    timestamp,
		Date:         date,
		PhotoRef:     photoRef,
		Coordinate:   coord,
		Address:      address,
		FaceVerified: verified,
		Replace:      req.Replace,
	})
	if err != nil {
		h.discardPhoto(photoRef)
		response.HandleError(w, err)
		return
	}

	resp := attendance.NewRecordAttendanceResponse(result)
	if result.Pending != nil {
		response.Accepted(w, "Attendance is outside the allowed area and awaits admin approval", resp)
		return
	}

	message := "Clock in successful"
	if kind == attendance.KindOut {
		message = "Clock out successful"
	}
	response.Created(w, message, resp)
}

// captureTime returns the submission time. A client supplied timestamp must
// lie within MaxCaptureSkew of the server clock.
func (h *attendanceHandlerImpl) captureTime(capturedAt *string) (time.Time, error) {
	now := h.now()
	if capturedAt == nil || *capturedAt == "" {
		return now, nil
	}

	t, _ := validator.IsValidDateTime(*capturedAt)
	skew := now.Sub(t)
	if skew < 0 {
		skew = -skew
	}
	if h.config.MaxCaptureSkew > 0 && skew > h.config.MaxCaptureSkew {
		return time.Time{}, validator.ValidationErrors{{
			Field:   "captured_at",
			Message: "captured_at is too far from the server time",
		}}
	}
	return t, nil
}

// inspect runs face verification and reverse geocoding side by side. A
// verifier error counts as not verified; a geocoder error falls back to the
// coordinate placeholder.
func (h *attendanceHandlerImpl) inspect(ctx context.Context, photoRef, referenceRef string, coord attendance.Coordinate) (bool, string) {
	var verified bool
	var address string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := h.faceVerifier.Verify(gctx, photoRef, referenceRef)
		if err != nil {
			slog.Warn("Face verification unavailable", "photo_ref", photoRef, "error", err)
			return nil
		}
		verified = ok
		return nil
	})
	g.Go(func() error {
		addr, err := h.geocoder.ResolveAddress(gctx, coord)
		if err != nil || addr == "" {
			addr = geocode.Placeholder(coord)
		}
		address = addr
		return nil
	})
	_ = g.Wait()

	return verified, address
}

func (h *attendanceHandlerImpl) discardPhoto(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.fileService.DeleteFile(ctx, ref); err != nil {
		slog.Warn("Failed to delete rejected attendance photo", "photo_ref", ref, "error", err)
	}
}

// GetMyRecord implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetMyRecord(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.ClaimsFromContext(r.Context())
	if err != nil {
		response.HandleError(w, auth.ErrInvalidToken)
		return
	}

	date := attendance.DateOf(h.now(), h.config.Location)
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, valid := validator.IsValidDate(d)
		if !valid {
			response.ValidationError(w, map[string]string{"date": "date must be in YYYY-MM-DD format"})
			return
		}
		date = parsed
	}

	record, err := h.attendanceService.GetMyRecord(r.Context(), claims.EmployeeID, date)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	if record == nil {
		response.SuccessWithMessage(w, "No attendance recorded for this date", nil)
		return
	}
	response.Success(w, attendance.NewRecordResponse(*record))
}

// List implements AttendanceHandler.
func (h *attendanceHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := attendance.RecordFilter{}

	if employeeID := query.Get("employee_id"); employeeID != "" {
		filter.EmployeeID = &employeeID
	}

	if date := query.Get("date"); date != "" {
		filter.Date = &date
	}

	// Date range filters
	if startDate := query.Get("start_date"); startDate != "" {
		filter.StartDate = &startDate
	}
	if endDate := query.Get("end_date"); endDate != "" {
		filter.EndDate = &endDate
	}

	if status := query.Get("status"); status != "" {
		filter.Status = &status
	}

	if pending, err := strconv.ParseBool(query.Get("pending_only")); err == nil {
		filter.PendingOnly = pending
	}

	filter.Page = getIntQueryParam(r, "page", 1)
	filter.Limit = getIntQueryParam(r, "limit", 20)
	filter.SortBy = query.Get("sort_by")
	filter.SortOrder = query.Get("sort_order")

	results, err := h.attendanceService.ListRecords(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMeta(w, results.Records, &response.Meta{
		Page:       results.Page,
		Limit:      results.Limit,
		TotalItems: results.TotalCount,
		TotalPages: results.TotalPages,
		Showing:    results.Showing,
	})
}

// Get implements AttendanceHandler.
func (h *attendanceHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.attendanceService.GetRecord(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.NewRecordResponse(record))
}

// getIntQueryParam gets an int query parameter with a default value
func getIntQueryParam(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}
