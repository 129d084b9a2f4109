package api

import (
	"net/http"

	"github.com/hackgods/clinic-core/internal/billing"
)

func createInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateInvoiceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		inv, err := svc.CreateInvoice(r.Context(), actorFrom(r.Context()), req.toDomain())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
	}
}

func listInvoicesHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := &query{r: r}
		f := billing.ListFilter{
			PatientID: q.uuidParam("patient_id"),
			From:      q.timeParam("from"),
			To:        q.timeParam("to"),
			Limit:     q.intParam("limit"),
			Offset:    q.intParam("offset"),
		}
		if s := q.strParam("status"); s != "" {
			status := billing.InvoiceStatus(s)
			if !status.Valid() {
				q.fail("status")
			}
			f.Status = &status
		}
		if !q.ok(w) {
			return
		}

		list, err := svc.List(r.Context(), actorFrom(r.Context()), f)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]InvoiceResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toInvoiceResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		inv, err := svc.Get(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}

func applyPaymentHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req PaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.ApplyPayment(r.Context(), actorFrom(r.Context()), id, billing.PaymentRequest{
			Amount:    req.Amount,
			Method:    billing.PaymentMethod(req.Method),
			Reference: req.Reference,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, PaymentResultResponse{
			Payment:    toPaymentResponse(res.Payment),
			AmountPaid: res.AmountPaid.StringFixed(2),
			AmountDue:  res.AmountDue.StringFixed(2),
			Status:     string(res.Status),
		})
	}
}

func listPaymentsHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		payments, err := svc.Payments(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]PaymentResponse, 0, len(payments))
		for _, p := range payments {
			resp = append(resp, toPaymentResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		inv, err := svc.CancelInvoice(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}
