package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/dto"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/pkg/middleware"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	coordinator = middleware.Identity{UserID: "coord-1", Role: "COORDINATOR", Department: "CSE"}
	otherCoord  = middleware.Identity{UserID: "coord-2", Role: "COORDINATOR", Department: "CSE"}
	hodCSE      = middleware.Identity{UserID: "hod-cse", Role: "HOD", Department: "CSE"}
	hodECE      = middleware.Identity{UserID: "hod-ece", Role: "HOD", Department: "ECE"}
	dean        = middleware.Identity{UserID: "dean-1", Role: "DEAN"}
	head        = middleware.Identity{UserID: "head-1", Role: "INSTITUTIONAL_HEAD"}
	admin       = middleware.Identity{UserID: "admin-1", Role: "ADMIN"}
	anonymous   = middleware.Identity{}
)

// apiFixture is the full API over a memory ledger seeded with a small catalog
type apiFixture struct {
	router *gin.Engine
	broker *service.Broker

	auditorium *domain.Venue
	cseHall    *domain.Venue
	mics       *domain.Resource
	projectors *domain.Resource
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	ledger := repository.NewMemoryLedgerRepository()
	broker := service.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })

	approval := service.NewApprovalService(ledger, service.NewAllocator(), broker, nil)
	query := service.NewQueryService(ledger)
	adminSvc := service.NewAdminService(ledger, broker, nil)

	f := &apiFixture{broker: broker}
	ctx := context.Background()
	actor := domain.Actor{ID: admin.UserID, Role: domain.RoleAdmin}
	var err error

	f.auditorium, err = adminSvc.CreateVenue(ctx, actor, &service.VenueInput{Name: "Main Auditorium", Type: "Auditorium", Capacity: 500})
	require.NoError(t, err)
	dept := "CSE"
	f.cseHall, err = adminSvc.CreateVenue(ctx, actor, &service.VenueInput{Name: "Conference Hall A", Type: "Hall", Capacity: 50, Department: &dept})
	require.NoError(t, err)
	f.mics, err = adminSvc.CreateResource(ctx, actor, &service.ResourceInput{Name: "Wireless Mics", Type: "Audio", Total: 10})
	require.NoError(t, err)
	f.projectors, err = adminSvc.CreateResource(ctx, actor, &service.ResourceInput{Name: "Projectors", Type: "Visual", Total: 5})
	require.NoError(t, err)

	router := gin.New()
	v1 := router.Group("/api/v1", middleware.Identify(nil))
	RegisterRoutes(v1, &Handlers{
		Event:        NewEventHandler(approval, query),
		Catalog:      NewCatalogHandler(query, adminSvc),
		Audit:        NewAuditHandler(service.NewAuditService(ledger)),
		Notification: NewNotificationHandler(broker, nil),
	})
	f.router = router
	return f
}

// do sends a JSON request as who and returns the recorded response
func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, who middleware.Identity) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	setIdentity(req, who)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func setIdentity(req *http.Request, who middleware.Identity) {
	if who.UserID != "" {
		req.Header.Set(middleware.UserIDHeader, who.UserID)
		req.Header.Set(middleware.UserRoleHeader, who.Role)
		req.Header.Set(middleware.UserDepartmentHeader, who.Department)
	}
}

func (f *apiFixture) submit(t *testing.T, who middleware.Identity, req dto.SubmitEventRequest) *dto.EventResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/events", req, who)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var ev dto.EventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	return &ev
}

func (f *apiFixture) transition(t *testing.T, who middleware.Identity, eventID, action, reason string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/v1/events/"+eventID+"/transitions",
		dto.TransitionRequest{Action: action, Reason: reason}, who)
}

func eventRequest(venueID, date string, claims ...dto.ClaimRequest) dto.SubmitEventRequest {
	return dto.SubmitEventRequest{
		Title:        "Tech Talk",
		Description:  "Guest lecture",
		Date:         date,
		Duration:     2,
		Participants: 40,
		VenueID:      venueID,
		Resources:    claims,
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

type listBody[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

func decodeList[T any](t *testing.T, w *httptest.ResponseRecorder) listBody[T] {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body listBody[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
