package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"trackly/internal/geo"
	"trackly/internal/session"
)

const maxBodyBytes = 1 << 16

var validate = validator.New()

type pointRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

func (p *pointRequest) point() geo.Point {
	return geo.Point{Lat: *p.Lat, Lng: *p.Lng}
}

type planRequest struct {
	SessionID string        `json:"sessionId" validate:"omitempty,uuid"`
	Start     *pointRequest `json:"start" validate:"required"`
	End       *pointRequest `json:"end" validate:"required"`
	TZ        string        `json:"tz" validate:"omitempty,timezone"`
}

type busSummary struct {
	VehicleNumber string   `json:"vehicleNumber"`
	HasRoute      bool     `json:"hasRoute"`
	Days          []string `json:"days"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "OK",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if loaded := s.catalog.LoadedAt(); !loaded.IsZero() {
		resp["catalogLoadedAt"] = loaded.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) ListBuses(w http.ResponseWriter, r *http.Request) {
	buses := s.catalog.Buses()
	out := make([]busSummary, 0, len(buses))
	for _, b := range buses {
		days := make([]string, 0, len(b.Schedules))
		for _, d := range b.Schedules {
			days = append(days, d.Day)
		}
		out = append(out, busSummary{VehicleNumber: b.VehicleNumber, HasRoute: b.HasRoute(), Days: days})
	}
	resp := map[string]any{
		"count": len(out),
		"buses": out,
	}
	if loaded := s.catalog.LoadedAt(); !loaded.IsZero() {
		resp["loadedAt"] = loaded.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) RefreshBuses(w http.ResponseWriter, r *http.Request) {
	n, err := s.catalog.Refresh(r.Context())
	if err != nil {
		log.Printf("refresh bus data error: %v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch bus data: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    n,
		"loadedAt": s.catalog.LoadedAt().UTC().Format(time.RFC3339),
	})
}

// BusRoute returns the decoded route of one bus with its length in meters.
func (s *Server) BusRoute(w http.ResponseWriter, r *http.Request) {
	vehicle := mux.Vars(r)["vehicle"]
	bus, ok := s.catalog.Bus(vehicle)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown vehicle "+vehicle)
		return
	}
	if !bus.HasRoute() {
		writeError(w, http.StatusNotFound, "vehicle "+vehicle+" has no route")
		return
	}
	points, err := s.catalog.Decode(bus.Route.Polyline)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "route polyline: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicleNumber": vehicle,
		"points":        points,
		"lengthMeters":  geo.Length(points),
	})
}

// CreatePlan runs a passenger query. Without a sessionId it opens a new
// session; with one it re-plans that session, which must have been issued by
// this server. Unavailable results are still 200 with a non-ok status in the
// body.
func (s *Server) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "invalid request",
				"fields": fieldErrors(verrs),
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := session.Query{SessionID: req.SessionID, Start: req.Start.point(), End: req.End.point()}
	if req.TZ != "" {
		loc, err := time.LoadLocation(req.TZ)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tz: "+err.Error())
			return
		}
		q.Location = loc
	}

	plan, err := s.planner.Plan(r.Context(), q)
	if errors.Is(err, session.ErrUnknownSession) {
		writeError(w, http.StatusNotFound, "unknown session "+req.SessionID)
		return
	}
	if err != nil {
		log.Printf("plan error session=%s: %v", req.SessionID, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.planner.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session "+id)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.planner.Delete(id) {
		writeError(w, http.StatusNotFound, "unknown session "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encode response error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
