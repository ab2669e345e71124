package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/splax/taskboard/internal/domain"
)

const dateOnlyLayout = "2006-01-02"

func (r *Router) handleTasks(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.listTasks(w, req)
	case http.MethodPost:
		r.createTask(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTask(w http.ResponseWriter, req *http.Request) {
	id := strings.Trim(strings.TrimPrefix(req.URL.Path, "/tasks/"), "/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.getTask(w, req, id)
	case http.MethodPut, http.MethodPatch:
		r.updateTask(w, req, id)
	case http.MethodDelete:
		r.deleteTask(w, req, id)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) listTasks(w http.ResponseWriter, req *http.Request) {
	p, ok := r.mustPrincipal(w, req)
	if !ok {
		return
	}
	tasks, err := r.tasks.List(req.Context(), p)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (r *Router) createTask(w http.ResponseWriter, req *http.Request) {
	p, ok := r.mustPrincipal(w, req)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, req)
	if !ok {
		return
	}
	draft, err := draftFromFields(fields)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	task, err := r.tasks.Create(req.Context(), p, draft)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (r *Router) getTask(w http.ResponseWriter, req *http.Request, id string) {
	p, ok := r.mustPrincipal(w, req)
	if !ok {
		return
	}
	task, err := r.tasks.Get(req.Context(), p, id)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (r *Router) updateTask(w http.ResponseWriter, req *http.Request, id string) {
	p, ok := r.mustPrincipal(w, req)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, req)
	if !ok {
		return
	}
	patch, err := patchFromFields(fields)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	task, err := r.tasks.Update(req.Context(), p, id, patch)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (r *Router) deleteTask(w http.ResponseWriter, req *http.Request, id string) {
	p, ok := r.mustPrincipal(w, req)
	if !ok {
		return
	}
	if err := r.tasks.Delete(req.Context(), p, id); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
}

// decodeFields reads a JSON object keeping raw values so absent and null
// fields can be told apart. Unknown keys, including id and owner, are ignored.
func decodeFields(w http.ResponseWriter, req *http.Request) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if !decodeJSON(w, req, &fields) {
		return nil, false
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return fields, true
}

func draftFromFields(fields map[string]json.RawMessage) (domain.TaskDraft, error) {
	var draft domain.TaskDraft
	var err error
	if draft.Title, err = stringField(fields, "title"); err != nil {
		return draft, err
	}
	if draft.Description, err = stringField(fields, "description"); err != nil {
		return draft, err
	}
	if draft.Priority, err = stringField(fields, "priority"); err != nil {
		return draft, err
	}
	if draft.Status, err = stringField(fields, "status"); err != nil {
		return draft, err
	}
	if raw, ok := fields["dueDate"]; ok && !isNull(raw) {
		due, err := parseDueDate(raw)
		if err != nil {
			return draft, err
		}
		draft.DueDate = &due
	}
	return draft, nil
}

func patchFromFields(fields map[string]json.RawMessage) (domain.TaskPatch, error) {
	var patch domain.TaskPatch
	for _, name := range []string{"title", "description", "priority", "status"} {
		raw, ok := fields[name]
		if !ok || (isNull(raw) && name != "description") {
			continue
		}
		value, err := stringField(fields, name)
		if err != nil {
			return patch, err
		}
		switch name {
		case "title":
			patch.Title = &value
		case "description":
			patch.Description = &value
		case "priority":
			patch.Priority = &value
		case "status":
			patch.Status = &value
		}
	}
	if raw, ok := fields["dueDate"]; ok {
		if isNull(raw) {
			patch.ClearDueDate = true
		} else {
			due, err := parseDueDate(raw)
			if err != nil {
				return patch, err
			}
			patch.DueDate = &due
		}
	}
	return patch, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &domain.ValidationError{Field: name, Message: "must be a string"}
	}
	return value, nil
}

// parseDueDate accepts an RFC 3339 timestamp or a bare calendar date.
func parseDueDate(raw json.RawMessage) (time.Time, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return time.Time{}, &domain.ValidationError{Field: "dueDate", Message: "must be a date string"}
	}
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateOnlyLayout, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &domain.ValidationError{Field: "dueDate", Message: "must be RFC 3339 or YYYY-MM-DD"}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
