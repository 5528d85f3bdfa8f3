package controller

import (
	"net/http"

	"github.com/cassiomorais/paygate/internal/domain/payment"
	"github.com/cassiomorais/paygate/internal/service"
)

// PaymentController handles the provider-specific payment routes.
type PaymentController struct {
	gateway *service.GatewayService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(gateway *service.GatewayService) *PaymentController {
	return &PaymentController{gateway: gateway}
}

// CreatePayPalOrder handles POST /payments/paypal
func (h *PaymentController) CreatePayPalOrder(w http.ResponseWriter, r *http.Request) {
	var req PayPalPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.gateway.Initiate(r.Context(), payment.ProviderPayPal, req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, "", toPayPalOrderResponse(res))
}

// CapturePayPalOrder handles PUT /payments/paypal
func (h *PaymentController) CapturePayPalOrder(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.gateway.Capture(r.Context(), payment.ProviderPayPal, req.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, "", toCaptureResponse(res))
}

// SubmitPesapalOrder handles POST /payments/pesapal. The provider's reply is
// returned as is.
func (h *PaymentController) SubmitPesapalOrder(w http.ResponseWriter, r *http.Request) {
	var req PesapalPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.gateway.Initiate(r.Context(), payment.ProviderPesapal, req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, "", res.Raw)
}

// RequestRelworxPayment handles POST /payments/relworx
func (h *PaymentController) RequestRelworxPayment(w http.ResponseWriter, r *http.Request) {
	var req RelworxPaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.gateway.Initiate(r.Context(), payment.ProviderRelworx, req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, res.Message, toRelworxPaymentResponse(res))
}

// GetStatus handles GET /payments/status?reference=&type=
func (h *PaymentController) GetStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	res, err := h.gateway.Status(r.Context(), payment.StatusQuery{
		Reference: q.Get("reference"),
		Provider:  payment.Provider(q.Get("type")),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, "", toStatusResponse(res))
}
