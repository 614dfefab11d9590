package handler

import (
	"net/http"
	"strconv"

	"gt06gateway/internal/command"
	"gt06gateway/internal/model"
)

// CommandsHandler serves the command-issue and command-status routes.
// Every issue route returns 200 with a success envelope: command
// outcomes surface through the envelope's success/message fields and
// the downstream CommandEvent bus, not HTTP status codes.
type CommandsHandler struct {
	dispatcher *command.Dispatcher
}

func NewCommandsHandler(d *command.Dispatcher) *CommandsHandler {
	return &CommandsHandler{dispatcher: d}
}

type commandIssueResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	CommandID string `json:"command_id,omitempty"`
	Status    string `json:"status,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

func (h *CommandsHandler) issue(w http.ResponseWriter, r *http.Request, commandType string, buildWireForm func(password string) string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	deviceID := q.Get("deviceId")
	if deviceID == "" {
		writeJSON(w, http.StatusOK, commandIssueResponse{Success: false, Message: "deviceId is required"})
		return
	}
	var serverFlag uint32
	if raw := q.Get("serverFlag"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeJSON(w, http.StatusOK, commandIssueResponse{Success: false, Message: "serverFlag must be an unsigned integer"})
			return
		}
		serverFlag = uint32(v)
	}

	wireForm := buildWireForm(q.Get("password"))
	cmd, err := h.dispatcher.Send(model.CommandRequest{
		IMEI:        deviceID,
		CommandType: commandType,
		WireForm:    wireForm,
		ServerFlag:  serverFlag,
		English:     true,
	})

	resp := commandIssueResponse{
		Success:   err == nil,
		CommandID: cmd.CommandID,
		Status:    string(cmd.Status),
		DeviceID:  deviceID,
	}
	if err != nil {
		resp.Message = err.Error()
	} else {
		resp.Message = "command sent"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CommandsHandler) EngineCutOff(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, command.TypeEngineCutOff, command.EngineCutOffWireForm)
}

func (h *CommandsHandler) EngineRestore(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, command.TypeEngineRestore, command.EngineRestoreWireForm)
}

func (h *CommandsHandler) LocationRequest(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, command.TypeLocationRequest, command.LocationRequestWireForm)
}

func (h *CommandsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, command.TypeReset, command.ResetWireForm)
}

func (h *CommandsHandler) StatusQuery(w http.ResponseWriter, r *http.Request) {
	h.issue(w, r, command.TypeStatusQuery, func(string) string {
		return command.StatusQueryWireForm()
	})
}

func (h *CommandsHandler) TimerConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accOn, _ := strconv.Atoi(q.Get("accOn"))
	accOff, _ := strconv.Atoi(q.Get("accOff"))
	h.issue(w, r, command.TypeTimerConfig, func(password string) string {
		return command.TimerConfigWireForm(accOn, accOff, password)
	})
}

func (h *CommandsHandler) ServerConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ip := q.Get("ip")
	port, _ := strconv.Atoi(q.Get("port"))
	h.issue(w, r, command.TypeServerConfig, func(password string) string {
		return command.ServerConfigWireForm(ip, port, password)
	})
}

// Status handles GET /api/v1/commands/{command_id}/status.
func (h *CommandsHandler) Status(w http.ResponseWriter, r *http.Request, commandID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cmd, ok := h.dispatcher.Status(commandID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown command_id")
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// Cancel handles DELETE /api/v1/commands/{command_id}.
func (h *CommandsHandler) Cancel(w http.ResponseWriter, r *http.Request, commandID string) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	err := h.dispatcher.Cancel(commandID)
	resp := commandIssueResponse{Success: err == nil, CommandID: commandID}
	switch err {
	case nil:
		resp.Message = "cancelled"
	case command.ErrNotFound:
		writeError(w, http.StatusNotFound, "unknown command_id")
		return
	default:
		resp.Message = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
