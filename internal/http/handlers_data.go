package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"oshikakeibo/internal/core"
	"oshikakeibo/internal/importexport"
)

const defaultSnapshotLimit = 20

// handleImportCSV imports expenses from a CSV upload, either as the "file"
// part of a multipart form or as the raw body. Rows without a usable
// personId go to ?personId=, or to the first person.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	personID, err := QueryInt64(r.URL.Query(), "personId", 0)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	f, err := UploadedFile(w, r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	defer f.Close()

	res, err := s.svc.ImportCSV(r.Context(), f, personID)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(res).Write(w)
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Export()
	var buf bytes.Buffer
	if err := importexport.WriteJSON(&buf, snap); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().
		Attachment("application/json; charset=utf-8", importexport.BackupFilename(snap.ExportedAt), buf.Bytes()).
		Write(w)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Export()
	var buf bytes.Buffer
	if err := importexport.WriteXLSX(&buf, snap); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().
		Attachment("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", importexport.XLSXFilename(snap.ExportedAt), buf.Bytes()).
		Write(w)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Export()
	var buf bytes.Buffer
	if err := importexport.WriteCSV(&buf, snap.Expenses); err != nil {
		FromError(r, err).Write(w)
		return
	}
	filename := fmt.Sprintf("oshi-kakeibo-expenses-%s.csv", snap.ExportedAt.Format("2006-01-02"))
	NewResponse().
		Attachment("text/csv; charset=utf-8", filename, buf.Bytes()).
		Write(w)
}

// handleRestore replaces the whole store with an uploaded JSON backup.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	f, err := UploadedFile(w, r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	defer f.Close()

	snap, err := importexport.ReadSnapshot(f)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if err := s.svc.Restore(r.Context(), snap); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(restoreSummary(snap)).Write(w)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, err := QueryInt64(r.URL.Query(), "limit", defaultSnapshotLimit)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	infos, err := s.svc.ListSnapshots(r.Context(), int(limit))
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(infos).Write(w)
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = "manual"
	}
	info, err := s.svc.ArchiveSnapshot(r.Context(), reason)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(info).Write(w)
}

// handleRestoreSnapshot restores an archived snapshot by id, or the most
// recent one for the id "latest".
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	var id int64
	if raw := r.PathValue("id"); raw != "latest" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			FromError(r, fmt.Errorf("%w: snapshot id %q", core.ErrValidation, raw)).Write(w)
			return
		}
		id = parsed
	}
	snap, err := s.svc.RestoreSnapshot(r.Context(), id)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(restoreSummary(snap)).Write(w)
}

// handleMirrorSync appends every expense missing from the spreadsheet.
func (s *Server) handleMirrorSync(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.SyncMirror(r.Context())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(map[string]int{"mirrored": n}).Write(w)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.RunMaintenance(r.Context())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().JSON(report).Write(w)
}

func restoreSummary(snap importexport.Snapshot) map[string]any {
	return map[string]any{
		"people":     len(snap.People),
		"expenses":   len(snap.Expenses),
		"budgets":    len(snap.Budgets),
		"events":     len(snap.Events),
		"exportedAt": snap.ExportedAt,
	}
}
