package main

import (
	"encoding/json"
	"net/http"

	"github.com/p-n-ai/pai-lessons/internal/lesson"
)

type lessonSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Activities int    `json:"activities"`
}

type activityView struct {
	ID                 string         `json:"id"`
	Kind               string         `json:"kind"`
	Title              string         `json:"title,omitempty"`
	TrackTime          bool           `json:"track_time"`
	RequiresCompletion bool           `json:"requires_completion"`
	Attempts           int            `json:"attempts,omitempty"`
	Children           []activityView `json:"children,omitempty"`
}

func handleLessons(lessons *lesson.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := []lessonSummary{}
		if lessons != nil {
			for _, l := range lessons.All() {
				out = append(out, lessonSummary{ID: l.ID, Title: l.Title, Activities: len(l.Activities)})
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

func handleLesson(lessons *lesson.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if lessons == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "lesson not found"})
			return
		}
		l, ok := lessons.Get(r.PathValue("lesson_id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "lesson not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id":         l.ID,
			"title":      l.Title,
			"activities": viewActivities(l.Activities),
		}})
	}
}

func viewActivities(acts []lesson.Activity) []activityView {
	out := make([]activityView, 0, len(acts))
	for _, a := range acts {
		v := activityView{
			ID:                 a.ID,
			Kind:               string(a.Kind),
			Title:              a.Title,
			TrackTime:          a.TrackTime,
			RequiresCompletion: a.RequiresCompletion,
			Attempts:           a.Attempts,
		}
		if len(a.Children) > 0 {
			v.Children = viewActivities(a.Children)
		}
		out = append(out, v)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
