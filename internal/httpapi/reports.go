package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/apperror"
	"rollcall/internal/attendance"
	"rollcall/internal/report"
	"rollcall/internal/response"
)

type scanRequest struct {
	BadgeID   string `json:"badge_id"`
	RFIDUID   string `json:"rfid_uid"`
	Timestamp string `json:"timestamp"`
	Date      string `json:"date"`
}

// RecordScan appends one badge scan to the scan log.
func (h *Handler) RecordScan(c *gin.Context) {
	var req scanRequest
	if err := decodeBody(c.Request, &req); err != nil {
		h.writeError(c, err)
		return
	}
	badge := req.BadgeID
	if strings.TrimSpace(badge) == "" {
		badge = req.RFIDUID
	}
	evt, person, err := h.scans.RecordScan(c.Request.Context(), attendance.ScanInput{
		BadgeID:   badge,
		Timestamp: req.Timestamp,
		Date:      req.Date,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"log_id":    evt.LogID,
		"person_id": person.PersonID,
		"name":      person.Name,
	})
}

type filterParams struct {
	Cohort     string `form:"cohort"`
	Department string `form:"department"`
	Section    string `form:"section"`
}

type rangeParams struct {
	Date      string `form:"date"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

type entryLogsParams struct {
	rangeParams
	filterParams
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

type resultsParams struct {
	rangeParams
	filterParams
	Status string `form:"status"`
}

type analyticsParams struct {
	filterParams
	Period    string `form:"period"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

// EntryLogs lists recent scans.
func (h *Handler) EntryLogs(c *gin.Context) {
	var p entryLogsParams
	if err := c.ShouldBindQuery(&p); err != nil {
		h.writeError(c, apperror.FromBinding(err))
		return
	}
	out, err := h.reports.EntryLogs(c.Request.Context(), report.EntryLogsQuery{
		Date:       p.Date,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		Cohort:     p.Cohort,
		Department: p.Department,
		Section:    p.Section,
		Limit:      p.Limit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Results lists Ledger entries with a status summary.
func (h *Handler) Results(c *gin.Context) {
	var p resultsParams
	if err := c.ShouldBindQuery(&p); err != nil {
		h.writeError(c, apperror.FromBinding(err))
		return
	}
	out, err := h.reports.Results(c.Request.Context(), report.ResultsQuery{
		Date:       p.Date,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		Cohort:     p.Cohort,
		Department: p.Department,
		Section:    p.Section,
		Status:     p.Status,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Analytics aggregates the Ledger by period.
func (h *Handler) Analytics(c *gin.Context) {
	var p analyticsParams
	if err := c.ShouldBindQuery(&p); err != nil {
		h.writeError(c, apperror.FromBinding(err))
		return
	}
	out, err := h.reports.Analytics(c.Request.Context(), report.AnalyticsQuery{
		Period:     p.Period,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		Cohort:     p.Cohort,
		Department: p.Department,
		Section:    p.Section,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}
