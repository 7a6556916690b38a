package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/adbilling/internal/actorcontext"
	"github.com/smallbiznis/adbilling/internal/authorization"
	earningdomain "github.com/smallbiznis/adbilling/internal/earning/domain"
	invoicedomain "github.com/smallbiznis/adbilling/internal/invoice/domain"
	payoutdomain "github.com/smallbiznis/adbilling/internal/payout/domain"
	reportingdomain "github.com/smallbiznis/adbilling/internal/reporting/domain"
	systemconfigdomain "github.com/smallbiznis/adbilling/internal/systemconfig/domain"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthz struct {
	denied map[string]bool
	seen   []actorcontext.Actor
}

func (f *fakeAuthz) Authorize(ctx context.Context, actor actorcontext.Actor, object string, action string) error {
	f.seen = append(f.seen, actor)
	if f.denied[action] {
		return authorization.ErrForbidden
	}
	return nil
}

type fakeInvoiceService struct {
	invoicedomain.Service
	invoice   invoicedomain.Invoice
	err       error
	gotAction invoicedomain.ActionRequest
	gotList   invoicedomain.ListInvoiceRequest
}

func (f *fakeInvoiceService) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return f.invoice, f.err
}

func (f *fakeInvoiceService) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	f.gotList = req
	return invoicedomain.ListInvoiceResponse{Invoices: []invoicedomain.Invoice{f.invoice}}, f.err
}

func (f *fakeInvoiceService) ApplyAction(ctx context.Context, id string, req invoicedomain.ActionRequest) (invoicedomain.Invoice, error) {
	f.gotAction = req
	return f.invoice, f.err
}

func (f *fakeInvoiceService) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	return f.invoice, f.err
}

func (f *fakeInvoiceService) RenderPDF(ctx context.Context, id string) ([]byte, invoicedomain.Invoice, error) {
	return []byte("%PDF-1.4"), f.invoice, f.err
}

type fakePayoutService struct {
	err error
}

func (f *fakePayoutService) ApplyAction(ctx context.Context, earningID string, req payoutdomain.ActionRequest) (earningdomain.PartnerEarning, error) {
	return earningdomain.PartnerEarning{Status: earningdomain.EarningStatusPaid}, f.err
}

type fakeReportService struct {
	gotReq reportingdomain.ReportRequest
}

func (f *fakeReportService) Report(ctx context.Context, req reportingdomain.ReportRequest) (reportingdomain.Report, error) {
	f.gotReq = req
	return reportingdomain.Report{Type: reportingdomain.ReportType(req.Type)}, nil
}

func (f *fakeReportService) Export(ctx context.Context, req reportingdomain.ReportRequest) ([]byte, string, error) {
	f.gotReq = req
	return []byte("PK"), "revenue-month.xlsx", nil
}

type fakeSystemConfigService struct {
	systemconfigdomain.Service
	actor actorcontext.Actor
}

func (f *fakeSystemConfigService) Set(ctx context.Context, actor actorcontext.Actor, key string, value string) (systemconfigdomain.Entry, error) {
	f.actor = actor
	return systemconfigdomain.Entry{Key: key, Value: value, Source: systemconfigdomain.SourceOverride}, nil
}

type harness struct {
	engine   *gin.Engine
	authz    *fakeAuthz
	invoices *fakeInvoiceService
	payouts  *fakePayoutService
	reports  *fakeReportService
	config   *fakeSystemConfigService
}

func newHarness(t *testing.T) harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	h := harness{
		engine: engine,
		authz:  &fakeAuthz{denied: map[string]bool{}},
		invoices: &fakeInvoiceService{invoice: invoicedomain.Invoice{
			ID:            snowflake.ID(42),
			InvoiceNumber: "INV-000042",
			TotalAmount:   decimal.RequireFromString("116.00"),
			Status:        invoicedomain.InvoiceStatusUnpaid,
		}},
		payouts: &fakePayoutService{},
		reports: &fakeReportService{},
		config:  &fakeSystemConfigService{},
	}
	NewServer(ServerParams{
		Gin:             engine,
		AuthzSvc:        h.authz,
		InvoiceSvc:      h.invoices,
		PayoutSvc:       h.payouts,
		ReportSvc:       h.reports,
		SystemConfigSvc: h.config,
	})
	return h
}

func (h harness) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

var admin = map[string]string{HeaderActorID: "ops-1", HeaderActorRole: "Platform_Admin"}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestAdminRoutesRequireActor(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/admin/invoices/42", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/admin/invoices/42", nil, map[string]string{HeaderActorID: "ops-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.authz.seen)
}

func TestAdminRoutesForwardActorToAuthorization(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/admin/invoices/42", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.authz.seen, 1)
	assert.Equal(t, "ops-1", h.authz.seen[0].ID)
	assert.Equal(t, "platform_admin", h.authz.seen[0].Role)
	assert.Equal(t, actorcontext.ActorUser, h.authz.seen[0].Type)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	var resp struct {
		Data invoicedomain.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INV-000042", resp.Data.InvoiceNumber)
}

func TestForbiddenActionMapsTo403(t *testing.T) {
	h := newHarness(t)
	h.authz.denied[authorization.ActionInvoiceUpdate] = true

	rec := h.do(http.MethodPost, "/admin/invoices/42/actions", map[string]string{"action": "cancel"}, admin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
	assert.Empty(t, h.invoices.gotAction.Action)
}

func TestDomainErrorsMapByKind(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{invoicedomain.ErrInvoiceNotFound, http.StatusNotFound, "invoice_not_found"},
		{invoicedomain.ErrOpenInvoiceExists, http.StatusConflict, "campaign_has_open_invoice"},
		{invoicedomain.ErrInvoiceCancelled, http.StatusUnprocessableEntity, "invoice_cancelled"},
		{invoicedomain.ErrInvalidStatus, http.StatusBadRequest, "invalid_invoice_status"},
		{context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		h := newHarness(t)
		h.invoices.err = tc.err

		rec := h.do(http.MethodPost, "/admin/invoices/42/actions", map[string]string{"action": "update_status", "status": "PAID"}, admin)
		assert.Equal(t, tc.status, rec.Code, tc.code)
		assert.Equal(t, tc.code, decodeError(t, rec).Code)
	}
}

func TestValidationFieldsAreListed(t *testing.T) {
	h := newHarness(t)
	h.invoices.err = errs.Validation("validation_error").WithFields(map[string]string{
		"line_items":    "required",
		"advertiser_id": "required",
	})

	rec := h.do(http.MethodPost, "/admin/invoices", map[string]any{"advertiser_id": "1"}, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 2)
	assert.Equal(t, "advertiser_id", payload.Errors[0].Field)
	assert.Equal(t, "line_items", payload.Errors[1].Field)
}

func TestMalformedBodyIsInvalidRequest(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/invoices/42/actions", bytes.NewBufferString("{"))
	for k, v := range admin {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestListInvoicesBindsFilters(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/admin/invoices?status=overdue&search=acme&page=2&page_size=5&due_to=2025-04-30", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "overdue", h.invoices.gotList.Status)
	assert.Equal(t, "acme", h.invoices.gotList.Search)
	assert.Equal(t, 2, h.invoices.gotList.Page)
	assert.Equal(t, 5, h.invoices.gotList.PageSize)
	require.NotNil(t, h.invoices.gotList.DueTo)
	assert.Equal(t, 30, h.invoices.gotList.DueTo.Day())
}

func TestDownloadInvoicePDF(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/admin/invoices/42/pdf", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="inv-000042.pdf"`)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
}

func TestReportJSONAndXLSX(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/admin/reports/revenue?granularity=week&start=2025-01-01", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "revenue", h.reports.gotReq.Type)
	assert.Equal(t, "week", h.reports.gotReq.Granularity)
	require.NotNil(t, h.reports.gotReq.Start)

	rec = h.do(http.MethodGet, "/admin/reports/revenue?format=xlsx", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "revenue-month.xlsx")
}

func TestPayoutActionConflictMapsTo422(t *testing.T) {
	h := newHarness(t)
	h.payouts.err = payoutdomain.ErrInvalidPayoutTransition

	rec := h.do(http.MethodPost, "/admin/payouts/7/actions", map[string]string{"action": "process"}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_payout_transition", decodeError(t, rec).Code)
}

func TestUpdateSystemConfigPassesActor(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPut, "/admin/system-config/taxRate", map[string]string{"value": "0.11"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops-1", h.config.actor.ID)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
