package main

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/hyperfold/pkg/coordinator"
	"github.com/cuemby/hyperfold/pkg/metrics"
	"github.com/cuemby/hyperfold/pkg/types"
)

// adminServer exposes the subset of *coordinator.Coordinator a storage
// daemon or a joining coordinator needs over HTTP, since the wire
// protocol in pkg/wire only carries client keyed/search traffic and no
// streaming control-plane transport survived the cut of grpc/protobuf.
// Grounded on pkg/api/health.go's http.NewServeMux + JSON-encode pattern.
type adminServer struct {
	coord *coordinator.Coordinator
}

func newAdminServer(coord *coordinator.Coordinator) *adminServer {
	return &adminServer{coord: coord}
}

func (s *adminServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/configuration", s.handleConfiguration)
	mux.HandleFunc("/v1/checkpoint", s.handleCheckpoint)
	mux.HandleFunc("/v1/join", s.handleJoin)
	mux.HandleFunc("/v1/init", s.handleInit)
	mux.HandleFunc("/v1/read-only", s.handleReadOnly)
	mux.HandleFunc("/v1/fault-tolerance", s.handleFaultTolerance)
	mux.HandleFunc("/v1/server-register", s.handleServerRegister)
	mux.HandleFunc("/v1/server-online", s.handleServerOnline)
	mux.HandleFunc("/v1/server-offline", s.handleServerOffline)
	mux.HandleFunc("/v1/server-shutdown", s.handleServerShutdown)
	mux.HandleFunc("/v1/server-kill", s.handleServerKill)
	mux.HandleFunc("/v1/server-forget", s.handleServerForget)
	mux.HandleFunc("/v1/server-suspect", s.handleServerSuspect)
	mux.HandleFunc("/v1/space-add", s.handleSpaceAdd)
	mux.HandleFunc("/v1/space-rm", s.handleSpaceRm)
	mux.HandleFunc("/v1/space-mv", s.handleSpaceMv)
	mux.HandleFunc("/v1/index-add", s.handleIndexAdd)
	mux.HandleFunc("/v1/index-rm", s.handleIndexRm)
	mux.HandleFunc("/v1/config-ack", s.handleConfigAck)
	mux.HandleFunc("/v1/config-stable", s.handleConfigStable)
	mux.HandleFunc("/v1/checkpoint-stable", s.handleCheckpointStable)
	mux.HandleFunc("/v1/transfer-go-live", s.handleTransferGoLive)
	mux.HandleFunc("/v1/transfer-complete", s.handleTransferComplete)
	mux.HandleFunc("/v1/alarm", s.handleAlarm)
	mux.HandleFunc("/v1/checkpoint-tick", s.handleCheckpointTick)
	mux.HandleFunc("/v1/debug-dump", s.handleDebugDump)
	return mux
}

type returnCodeResponse struct {
	Code types.ReturnCode `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type statusResponse struct {
	IsLeader   bool   `json:"is_leader"`
	LeaderAddr string `json:"leader_addr"`
}

func (s *adminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		IsLeader:   s.coord.IsLeader(),
		LeaderAddr: s.coord.LeaderAddr(),
	})
}

func (s *adminServer) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Configuration())
}

func (s *adminServer) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"checkpoint": s.coord.CheckpointNumber()})
}

type joinRequest struct {
	ServerID string `json:"server_id"`
	BindAddr string `json:"bind_addr"`
}

func (s *adminServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.coord.IsLeader() {
		writeError(w, http.StatusMisdirectedRequest, errNotLeader)
		return
	}
	if err := s.coord.AddVoter(req.ServerID, req.BindAddr); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

type initRequest struct {
	ClusterToken uint64 `json:"cluster_token"`
}

func (s *adminServer) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.Init(req.ClusterToken)
	respondReturnCode(w, code, err)
}

type readOnlyRequest struct {
	ReadOnly bool `json:"read_only"`
}

func (s *adminServer) handleReadOnly(w http.ResponseWriter, r *http.Request) {
	var req readOnlyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ReadOnly(req.ReadOnly)
	respondReturnCode(w, code, err)
}

type faultToleranceRequest struct {
	SpaceName string `json:"space_name"`
	R         int    `json:"r"`
}

func (s *adminServer) handleFaultTolerance(w http.ResponseWriter, r *http.Request) {
	var req faultToleranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.FaultTolerance(req.SpaceName, req.R)
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleServerRegister(w http.ResponseWriter, r *http.Request) {
	var req serverOnlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ServerRegister(req.ServerID, req.BindTo)
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleServerOffline(w http.ResponseWriter, r *http.Request) {
	var req serverIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ServerOffline(req.ServerID)
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleServerShutdown(w http.ResponseWriter, r *http.Request) {
	var req serverIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ServerShutdown(req.ServerID)
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleServerKill(w http.ResponseWriter, r *http.Request) {
	var req serverIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ServerKill(req.ServerID)
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleServerForget(w http.ResponseWriter, r *http.Request) {
	var req serverIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ServerForget(req.ServerID)
	respondReturnCode(w, code, err)
}

type spaceAddRequest struct {
	Space types.Space `json:"space"`
}

func (s *adminServer) handleSpaceAdd(w http.ResponseWriter, r *http.Request) {
	var req spaceAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.SpaceAdd(req.Space)
	respondReturnCode(w, code, err)
}

type spaceNameRequest struct {
	Name string `json:"name"`
}

func (s *adminServer) handleSpaceRm(w http.ResponseWriter, r *http.Request) {
	var req spaceNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.SpaceRm(req.Name)
	respondReturnCode(w, code, err)
}

type spaceMvRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func (s *adminServer) handleSpaceMv(w http.ResponseWriter, r *http.Request) {
	var req spaceMvRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.SpaceMv(req.OldName, req.NewName)
	respondReturnCode(w, code, err)
}

type indexAddRequest struct {
	SpaceName string `json:"space_name"`
	Attr      int    `json:"attr"`
}

func (s *adminServer) handleIndexAdd(w http.ResponseWriter, r *http.Request) {
	var req indexAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.IndexAdd(req.SpaceName, req.Attr)
	respondReturnCode(w, code, err)
}

type indexRmRequest struct {
	SpaceName string        `json:"space_name"`
	IndexID   types.IndexID `json:"index_id"`
}

func (s *adminServer) handleIndexRm(w http.ResponseWriter, r *http.Request) {
	var req indexRmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.IndexRm(req.SpaceName, req.IndexID)
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleAlarm(w http.ResponseWriter, r *http.Request) {
	code, err := s.coord.Alarm()
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleCheckpointTick(w http.ResponseWriter, r *http.Request) {
	code, err := s.coord.Checkpoint()
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleDebugDump(w http.ResponseWriter, r *http.Request) {
	dump, err := s.coord.DebugDump()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"dump": dump})
}

type serverOnlineRequest struct {
	ServerID types.ServerID `json:"server_id"`
	BindTo   string         `json:"bind_to"`
}

func (s *adminServer) handleServerOnline(w http.ResponseWriter, r *http.Request) {
	var req serverOnlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ServerOnline(req.ServerID, req.BindTo)
	respondReturnCode(w, code, err)
}

type serverIDRequest struct {
	ServerID types.ServerID `json:"server_id"`
}

func (s *adminServer) handleServerSuspect(w http.ResponseWriter, r *http.Request) {
	var req serverIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ServerSuspect(req.ServerID)
	respondReturnCode(w, code, err)
}

type serverVersionRequest struct {
	ServerID types.ServerID `json:"server_id"`
	Version  uint64         `json:"version"`
}

func (s *adminServer) handleConfigAck(w http.ResponseWriter, r *http.Request) {
	var req serverVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ConfigAck(req.ServerID, req.Version)
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleConfigStable(w http.ResponseWriter, r *http.Request) {
	var req serverVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.ConfigStable(req.ServerID, req.Version)
	respondReturnCode(w, code, err)
}

type checkpointStableRequest struct {
	ServerID         types.ServerID `json:"server_id"`
	ConfigVersion    uint64         `json:"config_version"`
	CheckpointNumber uint64         `json:"checkpoint_number"`
}

func (s *adminServer) handleCheckpointStable(w http.ResponseWriter, r *http.Request) {
	var req checkpointStableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.CheckpointStable(req.ServerID, req.ConfigVersion, req.CheckpointNumber)
	respondReturnCode(w, code, err)
}

type transferRequest struct {
	Version    uint64           `json:"version"`
	TransferID types.TransferID `json:"transfer_id"`
}

func (s *adminServer) handleTransferGoLive(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.TransferGoLive(req.Version, req.TransferID)
	respondReturnCode(w, code, err)
}

func (s *adminServer) handleTransferComplete(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	code, err := s.coord.TransferComplete(req.Version, req.TransferID)
	respondReturnCode(w, code, err)
}

func respondReturnCode(w http.ResponseWriter, code types.ReturnCode, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, returnCodeResponse{Code: code})
}
