package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"cargohold/internal/audit"
	"cargohold/internal/authority"
	"cargohold/internal/channel"
	"cargohold/internal/constants"
)

var usernamePattern = regexp.MustCompile(constants.SubjectUsernameRegex)

func validRole(role string) bool {
	switch role {
	case constants.RoleAdmin, constants.RoleOperator, constants.RoleUser:
		return true
	}
	return false
}

// handleSubjects handles /api/subjects
//
//	GET  - list subjects
//	POST - create a subject
func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		subjects, err := s.app.Authority.ListSubjects()
		if err != nil {
			s.logger.Error("Failed to list subjects: %v", err)
			WriteError(w, http.StatusInternalServerError, "Failed to list subjects", constants.ErrCodeInternal)
			return
		}
		if subjects == nil {
			subjects = []authority.Subject{}
		}
		WriteSuccess(w, map[string]interface{}{
			"subjects": subjects,
			"count":    len(subjects),
		})

	case http.MethodPost:
		s.createSubject(w, r)

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
	}
}

func (s *Server) createSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body", constants.ErrCodeBadRequest)
		return
	}
	if !usernamePattern.MatchString(req.Username) {
		WriteError(w, http.StatusBadRequest, "Invalid username (lowercase letters, digits, - and _, 3-64 chars)",
			constants.ErrCodeBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = constants.RoleUser
	}
	if !validRole(req.Role) {
		WriteError(w, http.StatusBadRequest, "Invalid role", constants.ErrCodeBadRequest)
		return
	}

	subject, err := s.app.Authority.CreateSubject(req.Username, req.DisplayName, req.Role)
	if err != nil {
		if errors.Is(err, authority.ErrSubjectExists) {
			WriteError(w, http.StatusConflict, "Subject already exists", constants.ErrCodeSubjectExists)
			return
		}
		s.logger.Error("Failed to create subject %q: %v", req.Username, err)
		WriteError(w, http.StatusInternalServerError, "Failed to create subject", constants.ErrCodeInternal)
		return
	}

	s.app.Audit.Record(constants.EventSubjectCreated, subject.ID, constants.OutcomeOK,
		"subject created", subjectChangeDetails(subject, nil))
	s.logger.Info("Created subject %q (%s, role %s)", subject.Username, subject.ID, subject.Role)
	WriteJSON(w, http.StatusCreated, subject)
}

// handleSubjectRoutes handles /api/subjects/{id} and its sub-resources:
//
//	GET /api/subjects/{id}
//	PUT /api/subjects/{id}/role    {"role": "..."}
//	PUT /api/subjects/{id}/active  {"active": bool}
func (s *Server) handleSubjectRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/subjects/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Missing subject id", constants.ErrCodeBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
			return
		}
		subject, err := s.app.Authority.GetSubject(id)
		if errors.Is(err, authority.ErrNotFound) {
			// The reference may be a username; resolve it the same way the
			// authorization lookup does, id first.
			subject, err = s.app.Authority.GetSubjectByUsername(id)
		}
		if err != nil {
			s.subjectError(w, id, err)
			return
		}
		WriteSuccess(w, subject)

	case len(parts) == 2 && parts[1] == "role":
		s.updateSubjectRole(w, r, id)

	case len(parts) == 2 && parts[1] == "active":
		s.updateSubjectActive(w, r, id)

	default:
		WriteError(w, http.StatusNotFound, "Not found", constants.ErrCodeNotFound)
	}
}

func (s *Server) updateSubjectRole(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validRole(req.Role) {
		WriteError(w, http.StatusBadRequest, "Invalid role", constants.ErrCodeBadRequest)
		return
	}

	if err := s.app.Authority.SetRole(id, req.Role); err != nil {
		s.subjectError(w, id, err)
		return
	}

	subject, err := s.app.Authority.GetSubject(id)
	if err != nil {
		s.subjectError(w, id, err)
		return
	}

	s.app.Audit.Record(constants.EventSubjectUpdated, id, constants.OutcomeOK,
		"subject role changed", subjectChangeDetails(subject, []string{"role"}))
	s.logger.Info("Subject %q role set to %s", subject.Username, req.Role)

	// A demotion out of the privileged set takes effect on live sessions
	// immediately rather than waiting for the next verification tick.
	if s.app.Gate != nil && !s.app.Gate.IsPrivileged(req.Role) {
		s.revokeLiveSessions(id)
	}

	WriteSuccess(w, subject)
}

func (s *Server) updateSubjectActive(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
		return
	}
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		WriteError(w, http.StatusBadRequest, "Missing active flag", constants.ErrCodeBadRequest)
		return
	}

	if err := s.app.Authority.SetActive(id, *req.Active); err != nil {
		s.subjectError(w, id, err)
		return
	}

	subject, err := s.app.Authority.GetSubject(id)
	if err != nil {
		s.subjectError(w, id, err)
		return
	}

	s.app.Audit.Record(constants.EventSubjectUpdated, id, constants.OutcomeOK,
		"subject active flag changed", subjectChangeDetails(subject, []string{"is_active"}))
	s.logger.Info("Subject %q active=%t", subject.Username, *req.Active)

	if !*req.Active {
		s.revokeLiveSessions(id)
	}

	WriteSuccess(w, subject)
}

// revokeLiveSessions closes every live admin session belonging to a subject.
// The close runs through the supervisor, so the terminal event and wire
// close code are the same as for a tick-detected revocation.
func (s *Server) revokeLiveSessions(subjectID string) {
	s.app.Registry.ForEach(func(sess *channel.Session) {
		if sess.SubjectID == subjectID {
			sess.RequestClose(channel.ReasonRevoked)
		}
	})
}

func (s *Server) subjectError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, authority.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "Subject not found", constants.ErrCodeSubjectNotFound)
		return
	}
	s.logger.Error("Subject %s operation failed: %v", id, err)
	WriteError(w, http.StatusInternalServerError, "Subject operation failed", constants.ErrCodeInternal)
}

func subjectChangeDetails(subject *authority.Subject, fields []string) audit.SubjectChangeDetails {
	return audit.SubjectChangeDetails{
		TargetSubjectID: subject.ID,
		TargetUsername:  subject.Username,
		FieldsChanged:   fields,
	}
}
