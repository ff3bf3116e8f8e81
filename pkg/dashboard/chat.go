package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/coreai-dashboard/pkg/advisor"
	"github.com/coreai-dashboard/pkg/allocation"
)

func (d *Dashboard) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := d.Chat.History(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (d *Dashboard) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err, nil)
		return
	}
	reply, err := d.Chat.Send(r.Context(), req.Message)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (d *Dashboard) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if err := d.Chat.Clear(r.Context()); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Dashboard) handleChatInsight(w http.ResponseWriter, r *http.Request) {
	msg, err := d.Chat.PushInsight(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// actionRequest names either a stored message whose action to use, or an
// action given inline.
type actionRequest struct {
	MessageID string          `json:"message_id"`
	Action    *advisor.Action `json:"action"`
}

func (d *Dashboard) resolveAction(w http.ResponseWriter, r *http.Request) (*advisor.Action, error) {
	var req actionRequest
	if err := decode(w, r, &req); err != nil {
		return nil, err
	}
	if req.MessageID != "" {
		return d.Chat.MessageAction(r.Context(), req.MessageID)
	}
	if req.Action == nil {
		return nil, fmt.Errorf("%w: message_id or action is required", errBadRequest)
	}
	// inline changes get the same validation as /api/reconcile
	action := req.Action.Clone()
	for i, c := range action.Changes {
		raw := allocation.RawChange{
			Category: c.Category,
			Name:     c.Name,
			From:     json.RawMessage(strconv.Itoa(c.From)),
			To:       json.RawMessage(strconv.Itoa(c.To)),
		}
		parsed, err := allocation.ParseChange(i, raw, d.Portfolio.Registry())
		if err != nil {
			return nil, err
		}
		action.Changes[i] = parsed
	}
	return action, nil
}

func (d *Dashboard) handleActionPreview(w http.ResponseWriter, r *http.Request) {
	action, err := d.resolveAction(w, r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	preview, err := d.Chat.PrepareAction(r.Context(), action)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (d *Dashboard) handleActionApply(w http.ResponseWriter, r *http.Request) {
	action, err := d.resolveAction(w, r)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	p, err := d.Chat.ApplyAction(r.Context(), action)
	if err != nil {
		var extra map[string]interface{}
		if p != nil {
			// unbalanced: the proposal stays pending for manual balancing
			extra = map[string]interface{}{"proposal": p}
		}
		writeError(w, err, extra)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
