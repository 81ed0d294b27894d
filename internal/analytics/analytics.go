package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"credibot/internal/storage"
)

// DailyStats resume la actividad del asistente durante un día.
type DailyStats struct {
	Date            string               `json:"date"`
	TotalMessages   int                  `json:"total_messages"`
	UniqueUsers     int                  `json:"unique_users"`
	FallbackReplies int                  `json:"fallback_replies"`
	RepliesBySource map[string]int       `json:"replies_by_source"`
	UserStats       map[string]UserStats `json:"user_stats"`
}

// UserStats resume la actividad de un usuario.
type UserStats struct {
	UserID          string `json:"user_id"`
	Messages        int    `json:"messages"`
	FallbackReplies int    `json:"fallback_replies"`
}

// AnalyzeDailyLogs analiza los eventos registrados para la fecha indicada.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:            startOfDay.Format("2006-01-02"),
		RepliesBySource: make(map[string]int),
		UserStats:       make(map[string]UserStats),
	}

	uniqueUsers := make(map[string]bool)

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		// Solo contamos intercambios reales, no registros de sistema.
		if event.UserMessage == "" {
			continue
		}

		stats.TotalMessages++
		uniqueUsers[event.UserID] = true
		if event.Source != "" {
			stats.RepliesBySource[event.Source]++
		}

		userStat := stats.UserStats[event.UserID]
		userStat.UserID = event.UserID
		userStat.Messages++
		if event.Fallback {
			stats.FallbackReplies++
			userStat.FallbackReplies++
		}
		stats.UserStats[event.UserID] = userStat
	}

	stats.UniqueUsers = len(uniqueUsers)
	return stats
}

// GenerateReportSummary produce el resumen textual del día para los logs.
func (ds *DailyStats) GenerateReportSummary() string {
	summary := fmt.Sprintf(`Estadísticas del asistente para %s:

Actividad general:
- Mensajes totales: %d
- Usuarios únicos: %d
- Respuestas por reglas (fallback): %d

`, ds.Date, ds.TotalMessages, ds.UniqueUsers, ds.FallbackReplies)

	if len(ds.RepliesBySource) > 0 {
		summary += "Respuestas por origen:\n"
		for source, count := range ds.RepliesBySource {
			summary += fmt.Sprintf("- %s: %d\n", source, count)
		}
		summary += "\n"
	}

	summary += fmt.Sprintf("Actividad por usuario (%d usuarios):\n", len(ds.UserStats))
	for userID, userStat := range ds.UserStats {
		summary += fmt.Sprintf("- Usuario %s: %d mensajes", userID, userStat.Messages)
		if userStat.FallbackReplies > 0 {
			summary += fmt.Sprintf(", %d por reglas", userStat.FallbackReplies)
		}
		summary += "\n"
	}

	return summary
}

// ToJSON serializa la estadística para análisis detallado.
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
