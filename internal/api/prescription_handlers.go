package api

import (
	"net/http"

	"github.com/hackgods/clinic-core/internal/prescription"
)

func issuePrescriptionHandler(svc PrescriptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IssuePrescriptionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.Issue(r.Context(), actorFrom(r.Context()), prescription.IssueRequest{
			PatientID:      req.PatientID,
			ConsultationID: req.ConsultationID,
			Diagnosis:      req.Diagnosis,
			Medications:    req.Medications,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPrescriptionResponse(p))
	}
}

func getPrescriptionHandler(svc PrescriptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.Get(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
	}
}

func attachInvoiceHandler(svc PrescriptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req AttachInvoiceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.AttachInvoice(r.Context(), actorFrom(r.Context()), id, req.InvoiceID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
	}
}

func releaseHandler(svc PrescriptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		releasable, err := svc.CanRelease(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, ReleaseResponse{PrescriptionID: id, Releasable: releasable})
	}
}

func prescriptionDocumentHandler(svc PrescriptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		file, err := svc.Document(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeFile(w, file)
	}
}
