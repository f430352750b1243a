package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/hyperfold/pkg/client"
	"github.com/cuemby/hyperfold/pkg/types"
	"github.com/cuemby/hyperfold/pkg/wire"
)

// AdminClient is a thin HTTP wrapper around one coordinatord replica's
// admin API, grounded on cmd/storaged/coordinator_client.go's
// get/post helpers and extended with the schema/membership operations a
// test harness drives directly (space-add, server-register, ...) rather
// than through the daemon-facing subset that package exposes.
type AdminClient struct {
	baseURL string
	http    *http.Client
}

// NewAdminClient builds an AdminClient against a coordinatord admin
// address (host:port).
func NewAdminClient(addr string) *AdminClient {
	return &AdminClient{
		baseURL: fmt.Sprintf("http://%s", addr),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *AdminClient) get(path string, out interface{}) error {
	resp, err := a.http.Get(a.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coordinator returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *AdminClient) post(path string, req, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := a.http.Post(a.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("coordinator rejected %s with status %d: %s", path, resp.StatusCode, errBody["error"])
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type returnCodeResponse struct {
	Code types.ReturnCode `json:"code"`
}

// Status returns whether this replica currently believes itself leader,
// and the admin address of whichever replica it thinks the leader is.
func (a *AdminClient) Status() (isLeader bool, leaderAddr string, err error) {
	var out struct {
		IsLeader   bool   `json:"is_leader"`
		LeaderAddr string `json:"leader_addr"`
	}
	err = a.get("/v1/status", &out)
	return out.IsLeader, out.LeaderAddr, err
}

// Configuration fetches the coordinator's current configuration snapshot.
func (a *AdminClient) Configuration() (*types.Configuration, error) {
	var cfg types.Configuration
	if err := a.get("/v1/configuration", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Checkpoint fetches the coordinator's current checkpoint number.
func (a *AdminClient) Checkpoint() (uint64, error) {
	var out struct {
		Checkpoint uint64 `json:"checkpoint"`
	}
	err := a.get("/v1/checkpoint", &out)
	return out.Checkpoint, err
}

// Join asks this replica's cluster to admit a new raft voter.
func (a *AdminClient) Join(serverID, bindAddr string) error {
	return a.post("/v1/join", map[string]interface{}{
		"server_id": serverID,
		"bind_addr": bindAddr,
	}, nil)
}

// Init issues the cluster's one-time init command.
func (a *AdminClient) Init(clusterToken uint64) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/init", map[string]interface{}{"cluster_token": clusterToken}, &out)
	return out.Code, err
}

// ServerRegister registers a new storage daemon with the coordinator.
func (a *AdminClient) ServerRegister(id types.ServerID, bindTo string) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/server-register", map[string]interface{}{"server_id": id, "bind_to": bindTo}, &out)
	return out.Code, err
}

// ServerSuspect reports a storage daemon as suspected dead, the admin
// surface for the call a peer's daemonlink makes automatically when its
// TCP connection to that daemon drops.
func (a *AdminClient) ServerSuspect(id types.ServerID) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/server-suspect", map[string]interface{}{"server_id": id}, &out)
	return out.Code, err
}

// ServerOffline marks a storage daemon offline.
func (a *AdminClient) ServerOffline(id types.ServerID) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/server-offline", map[string]interface{}{"server_id": id}, &out)
	return out.Code, err
}

// ServerShutdown requests a graceful shutdown of a storage daemon.
func (a *AdminClient) ServerShutdown(id types.ServerID) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/server-shutdown", map[string]interface{}{"server_id": id}, &out)
	return out.Code, err
}

// ServerKill forcibly removes a storage daemon from the configuration.
func (a *AdminClient) ServerKill(id types.ServerID) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/server-kill", map[string]interface{}{"server_id": id}, &out)
	return out.Code, err
}

// ServerForget removes all trace of a dead storage daemon.
func (a *AdminClient) ServerForget(id types.ServerID) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/server-forget", map[string]interface{}{"server_id": id}, &out)
	return out.Code, err
}

// SpaceAdd installs a new space's schema and hyperspace geometry.
func (a *AdminClient) SpaceAdd(sp types.Space) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/space-add", map[string]interface{}{"space": sp}, &out)
	return out.Code, err
}

// SpaceRm removes a space.
func (a *AdminClient) SpaceRm(name string) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/space-rm", map[string]interface{}{"name": name}, &out)
	return out.Code, err
}

// SpaceMv renames a space.
func (a *AdminClient) SpaceMv(oldName, newName string) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/space-mv", map[string]interface{}{"old_name": oldName, "new_name": newName}, &out)
	return out.Code, err
}

// FaultTolerance changes a space's replication factor.
func (a *AdminClient) FaultTolerance(spaceName string, r int) (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/fault-tolerance", map[string]interface{}{"space_name": spaceName, "r": r}, &out)
	return out.Code, err
}

// Alarm forces an immediate rebalance/convergence pass.
func (a *AdminClient) Alarm() (types.ReturnCode, error) {
	var out returnCodeResponse
	err := a.post("/v1/alarm", nil, &out)
	return out.Code, err
}

// DebugDump returns the coordinator's internal state as a debug string.
func (a *AdminClient) DebugDump() (string, error) {
	var out struct {
		Dump string `json:"dump"`
	}
	err := a.get("/v1/debug-dump", &out)
	return out.Dump, err
}

// Client wraps pkg/client.Client with synchronous, test-friendly
// methods, hiding the op-id/Loop/Result yield pipeline behind blocking
// calls since tests generally want one result at a time.
type Client struct {
	*client.Client
	timeout time.Duration
	stopCh  chan struct{}
}

// configSourceAdapter satisfies pkg/client.ConfigSource by polling a
// coordinator's admin API, the same role cmd/storaged's
// coordinatorClient plays for a real daemon.
type configSourceAdapter struct {
	admin  *AdminClient
	stopCh chan struct{}
}

func (a *configSourceAdapter) Configuration() *types.Configuration {
	cfg, err := a.admin.Configuration()
	if err != nil {
		return nil
	}
	return cfg
}

func (a *configSourceAdapter) SubscribeConfig() <-chan uint64 {
	ch := make(chan uint64, 1)
	go func() {
		var last uint64
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				cfg := a.Configuration()
				if cfg != nil && cfg.Version > last {
					last = cfg.Version
					select {
					case ch <- cfg.Version:
					default:
					}
				}
			}
		}
	}()
	return ch
}

// NewClient builds a test Client talking to the coordinator reachable
// through admin, dialing storage daemons directly over TCP via their
// bind addresses published in the coordinator's configuration.
func NewClient(admin *AdminClient) *Client {
	src := &configSourceAdapter{admin: admin, stopCh: make(chan struct{})}

	dial := func(server types.ServerID) (net.Conn, error) {
		cfg := src.Configuration()
		if cfg == nil {
			return nil, fmt.Errorf("no configuration available yet")
		}
		srv, ok := cfg.ServerByID(server)
		if !ok {
			return nil, fmt.Errorf("server %d not present in configuration", server)
		}
		return net.DialTimeout("tcp", srv.BindTo, 5*time.Second)
	}

	configVersion := func() uint64 {
		cfg := src.Configuration()
		if cfg == nil {
			return 0
		}
		return cfg.Version
	}

	transport := wire.NewTransport(dial, configVersion)
	return &Client{
		Client:  client.New(src, transport),
		timeout: 10 * time.Second,
		stopCh:  src.stopCh,
	}
}

// Close stops this client's background configuration poller.
func (c *Client) Close() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

// await blocks on Loop until id yields, returning its result.
func (c *Client) await(id string) (interface{}, types.ResultCode) {
	deadline := time.Now().Add(c.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, types.RTimeout
		}
		yielded, err := c.Client.Loop(remaining)
		if err != nil {
			return nil, types.RTimeout
		}
		if yielded == id {
			return c.Client.Result(id)
		}
	}
}

// GetValue performs a blocking Get and returns its result.
func (c *Client) GetValue(space string, key interface{}) (interface{}, types.ResultCode) {
	id, code := c.Client.Get(space, key)
	if code != types.RSuccess {
		return nil, code
	}
	return c.await(id)
}

// PutValue performs a blocking Put and returns the final result code.
func (c *Client) PutValue(space string, key interface{}, funcs []client.FuncallValue) types.ResultCode {
	id, code := c.Client.Put(space, key, funcs)
	if code != types.RSuccess {
		return code
	}
	_, resultCode := c.await(id)
	return resultCode
}

// DeleteValue performs a blocking Del and returns the final result code.
func (c *Client) DeleteValue(space string, key interface{}) types.ResultCode {
	id, code := c.Client.Del(space, key)
	if code != types.RSuccess {
		return code
	}
	_, resultCode := c.await(id)
	return resultCode
}

// SearchValues performs a blocking Search and returns the matching rows.
func (c *Client) SearchValues(space string, selection []client.FieldValue) (interface{}, types.ResultCode) {
	id, code := c.Client.Search(space, selection)
	if code != types.RSuccess {
		return nil, code
	}
	return c.await(id)
}
