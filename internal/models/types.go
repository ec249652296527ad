package models

import "time"

// StatusEvent is published every time a handover changes status.
type StatusEvent struct {
	HandoverID int64          `json:"handoverId"`
	PatientID  int64          `json:"patientId"`
	NurseID    int64          `json:"nurseId"`
	Status     HandoverStatus `json:"status"`
	Timestamp  int64          `json:"timestamp"`
}

func NewStatusEvent(h *Handover) StatusEvent {
	return StatusEvent{
		HandoverID: h.ID,
		PatientID:  h.PatientID,
		NurseID:    h.NurseID,
		Status:     h.Status,
		Timestamp:  time.Now().UnixMilli(),
	}
}

type ErrorResponse struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type HealthStatus struct {
	Status        string `json:"status"`
	Database      bool   `json:"database"`
	QueueDepth    int    `json:"queue_depth"`
	Workers       int    `json:"workers"`
	ActiveClients int    `json:"active_clients"`
	Uptime        string `json:"uptime"`
	Version       string `json:"version,omitempty"`
}

type DashboardStats struct {
	TodayHandovers int64 `json:"todayHandovers"`
	TotalHandovers int64 `json:"totalHandovers"`
}

type UserReport struct {
	MyHandoversCount    int64                    `json:"myHandoversCount"`
	TotalHandoversCount int64                    `json:"totalHandoversCount"`
	TotalPatients       int64                    `json:"totalPatients"`
	ByStatus            map[HandoverStatus]int64 `json:"byStatus"`
}
